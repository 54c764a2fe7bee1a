// Package marketdata serves market snapshots written by an external refresher.
// The refresher owns the files; this package only reads them.
package marketdata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	xerrors "NOLA-Exchange/internal/errors"
)

// CodeNotYetAvailable 表示快照尚未生成或暂时不可读。
const CodeNotYetAvailable xerrors.Code = "NOT_YET_AVAILABLE"

// ErrNotYetAvailable is returned while no readable snapshot exists.
var ErrNotYetAvailable = xerrors.New(CodeNotYetAvailable, "no cache yet")

func init() {
	xerrors.Register(CodeNotYetAvailable, xerrors.Attributes{
		Message:   "no cache yet",
		Severity:  xerrors.SeverityInfo,
		Retryable: true,
		Alert:     false,
	})
}

// Names lists the snapshots the refresher produces.
var Names = []string{"global", "lists", "majors"}

// Snapshot is one cached market document. Timestamp is unix milliseconds.
type Snapshot struct {
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Reader reads <dir>/<name>.json files of the form {"ts": ..., "payload": ...}.
type Reader struct {
	dir string
}

// NewReader returns a reader rooted at dir.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// Read returns the named snapshot. Missing, unreadable or malformed files all
// yield ErrNotYetAvailable.
func (r *Reader) Read(name string) (Snapshot, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !known(name) {
		return Snapshot{}, xerrors.InvalidInput("name", "未知的行情快照: "+name)
	}
	raw, err := os.ReadFile(filepath.Join(r.dir, name+".json"))
	if err != nil {
		return Snapshot{}, ErrNotYetAvailable
	}
	if !gjson.ValidBytes(raw) {
		return Snapshot{}, ErrNotYetAvailable
	}
	payload := gjson.GetBytes(raw, "payload")
	if !payload.Exists() {
		return Snapshot{}, ErrNotYetAvailable
	}
	return Snapshot{
		Timestamp: gjson.GetBytes(raw, "ts").Int(),
		Payload:   json.RawMessage(payload.Raw),
	}, nil
}

func known(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}
