package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"

	"NOLA-Exchange/pkg/logger"
)

const (
	defaultSearchLimit = 20
	emptySearchLimit   = 50
)

// Source 描述代币列表的来源，URL 与本地文件二选一。
type Source struct {
	URL  string
	File string
}

// Registry 是外部代币列表在本进程内的只读视图，按地址查找代币。
type Registry struct {
	mu         sync.RWMutex
	native     Token
	tokens     []Token
	byAddress  map[string]Token
	source     Source
	httpClient *http.Client
}

// NewRegistry 创建注册表。native 为链原生资产，始终存在于注册表中。
func NewRegistry(source Source, native Token) (*Registry, error) {
	addr, err := NormalizeAddress(native.Address)
	if err != nil {
		return nil, err
	}
	native.Address = addr
	if native.Decimals == 0 {
		native.Decimals = DefaultDecimals
	}
	r := &Registry{
		native:     native,
		source:     source,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	r.replace(nil)
	return r, nil
}

// NewStaticRegistry 直接使用给定的代币集合，主要用于测试与离线运行。
func NewStaticRegistry(native Token, tokens []Token) (*Registry, error) {
	r, err := NewRegistry(Source{}, native)
	if err != nil {
		return nil, err
	}
	r.replace(tokens)
	return r, nil
}

// Load 从配置的来源拉取代币列表并替换当前内容。
func (r *Registry) Load(ctx context.Context) error {
	var (
		body io.ReadCloser
		err  error
	)
	switch {
	case strings.TrimSpace(r.source.File) != "":
		body, err = os.Open(r.source.File)
		if err != nil {
			return fmt.Errorf("读取代币列表文件失败: %w", err)
		}
	case strings.TrimSpace(r.source.URL) != "":
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, r.source.URL, nil)
		if reqErr != nil {
			return fmt.Errorf("构建代币列表请求失败: %w", reqErr)
		}
		resp, doErr := r.httpClient.Do(req)
		if doErr != nil {
			return fmt.Errorf("请求代币列表失败: %w", doErr)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			resp.Body.Close()
			return fmt.Errorf("代币列表返回错误状态 %d", resp.StatusCode)
		}
		body = resp.Body
	default:
		return nil
	}
	defer body.Close()

	var decoded struct {
		Tokens []struct {
			Address  string `json:"address"`
			Symbol   string `json:"symbol"`
			Name     string `json:"name"`
			Decimals int32  `json:"decimals"`
			LogoURI  string `json:"logoURI"`
			Logo     string `json:"logo"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(body).Decode(&decoded); err != nil {
		return fmt.Errorf("解析代币列表失败: %w", err)
	}

	tokens := make([]Token, 0, len(decoded.Tokens))
	for _, t := range decoded.Tokens {
		logo := t.LogoURI
		if logo == "" {
			logo = t.Logo
		}
		tokens = append(tokens, Token{
			Address:  t.Address,
			Symbol:   t.Symbol,
			Name:     t.Name,
			Decimals: t.Decimals,
			LogoURI:  logo,
		})
	}
	r.replace(tokens)
	logger.Named("token").Info("代币列表已加载", slog.Int("count", r.Len()))
	return nil
}

// replace 规范化地址、去重并补齐原生资产。
func (r *Registry) replace(tokens []Token) {
	byAddress := make(map[string]Token, len(tokens)+1)
	list := make([]Token, 0, len(tokens)+1)
	for _, t := range tokens {
		addr, err := NormalizeAddress(t.Address)
		if err != nil {
			continue
		}
		if _, seen := byAddress[addr]; seen {
			continue
		}
		t.Address = addr
		if t.Decimals <= 0 {
			t.Decimals = DefaultDecimals
		}
		byAddress[addr] = t
		list = append(list, t)
	}
	if _, ok := byAddress[r.native.Address]; !ok {
		byAddress[r.native.Address] = r.native
		list = append(list, r.native)
	}

	r.mu.Lock()
	r.tokens = list
	r.byAddress = byAddress
	r.mu.Unlock()
}

// Lookup 按地址（忽略大小写）查找代币。
func (r *Registry) Lookup(addr string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byAddress[strings.ToLower(strings.TrimSpace(addr))]
	return t, ok
}

// DecimalsOf 返回代币精度，未知代币按 18 位处理。
func (r *Registry) DecimalsOf(addr string) int32 {
	if t, ok := r.Lookup(addr); ok {
		return t.Decimals
	}
	return DefaultDecimals
}

// IsNative 判断地址是否为链原生资产。
func (r *Registry) IsNative(addr string) bool {
	return SameAddress(addr, r.native.Address)
}

// Native 返回原生资产。
func (r *Registry) Native() Token {
	return r.native
}

// Search 在符号、名称与地址中做子串匹配；空查询返回前 50 个代币。
func (r *Registry) Search(query string) []Token {
	q := strings.ToLower(strings.TrimSpace(query))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if q == "" {
		n := min(len(r.tokens), emptySearchLimit)
		return append([]Token(nil), r.tokens[:n]...)
	}
	results := make([]Token, 0, defaultSearchLimit)
	for _, t := range r.tokens {
		if strings.Contains(strings.ToLower(t.Symbol), q) ||
			strings.Contains(strings.ToLower(t.Name), q) ||
			strings.Contains(t.Address, q) {
			results = append(results, t)
			if len(results) == defaultSearchLimit {
				break
			}
		}
	}
	return results
}

// All 返回按符号排序的全部代币副本。
func (r *Registry) All() []Token {
	r.mu.RLock()
	out := append([]Token(nil), r.tokens...)
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len 返回代币数量。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
