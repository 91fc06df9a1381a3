// Package audit writes one HMAC-signed JSON line per lifecycle event.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Logger struct {
	Enabled bool
	Secret  []byte
	RunID   string

	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// New returns a logger writing to stdout. Every event carries a run id
// unique to this process.
func New(enabled bool, secret string) *Logger {
	return NewWithWriter(enabled, secret, os.Stdout)
}

func NewWithWriter(enabled bool, secret string, out io.Writer) *Logger {
	return &Logger{
		Enabled: enabled,
		Secret:  []byte(secret),
		RunID:   uuid.NewString(),
		out:     out,
		now:     time.Now,
	}
}

func (l *Logger) Sign(payload []byte) string {
	m := hmac.New(sha256.New, l.Secret)
	m.Write(payload)
	return hex.EncodeToString(m.Sum(nil))
}

// Verify reports whether line is a signed event produced with this
// logger's secret.
func (l *Logger) Verify(line []byte) bool {
	var ev map[string]any
	if err := json.Unmarshal(line, &ev); err != nil {
		return false
	}
	sig, _ := ev["sig"].(string)
	delete(ev, "sig")
	b, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(l.Sign(b)))
}

// Write emits event with fields. A nil logger or a disabled one is a no-op.
func (l *Logger) Write(event string, fields map[string]any) {
	if l == nil || !l.Enabled {
		return
	}
	tmp := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		if k == "sig" {
			continue
		}
		tmp[k] = v
	}
	tmp["event"] = event
	tmp["run_id"] = l.RunID
	if _, ok := tmp["ts"]; !ok {
		tmp["ts"] = l.now().Unix()
	}
	// sign without sig, then append it
	b, _ := json.Marshal(tmp)
	tmp["sig"] = l.Sign(b)
	out, _ := json.Marshal(tmp)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(out, '\n'))
}
