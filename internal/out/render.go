package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/version"
)

// Envelope is the uniform CLI answer: every command prints exactly one,
// successful or not, so scripts can parse stdout unconditionally.
type Envelope struct {
	Success  bool       `json:"success"`
	Data     any        `json:"data,omitempty"`
	Error    *ErrorBody `json:"error,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
	Meta     Meta       `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

func newMeta() Meta {
	return Meta{Version: version.CLIVersion, Timestamp: time.Now().Unix()}
}

func Success(data any, warnings ...string) Envelope {
	return Envelope{Success: true, Data: data, Warnings: warnings, Meta: newMeta()}
}

func Failure(err error) Envelope {
	body := &ErrorBody{Code: int(clierr.CodeInternal), Message: err.Error()}
	if typed, ok := clierr.As(err); ok {
		body.Code = int(typed.Code)
		body.Message = typed.Error()
	}
	return Envelope{Success: false, Error: body, Meta: newMeta()}
}

// Render writes the envelope in the requested mode. "json" is the machine
// shape; "plain" collapses the data into sorted key=value lines.
func Render(w io.Writer, env Envelope, mode string) error {
	if mode != "plain" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}
	if env.Error != nil {
		_, err := fmt.Fprintf(w, "error code=%d message=%s\n", env.Error.Code, env.Error.Message)
		return err
	}
	for _, warning := range env.Warnings {
		if _, err := fmt.Fprintf(w, "warning %s\n", warning); err != nil {
			return err
		}
	}
	return renderPlain(w, env.Data)
}

func renderPlain(w io.Writer, data any) error {
	n := normalizeValue(data)
	switch t := n.(type) {
	case nil:
		_, err := fmt.Fprintln(w, "null")
		return err
	case []any:
		if len(t) == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		for _, item := range t {
			line, err := toLine(item)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		return nil
	default:
		line, err := toLine(n)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}
}

// normalizeValue flattens arbitrary structs into the generic JSON shapes so
// plain rendering only has to deal with maps, slices and scalars.
func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func toLine(v any) (string, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			switch nested := t[k].(type) {
			case map[string]any, []any:
				buf, err := json.Marshal(nested)
				if err != nil {
					return "", err
				}
				parts = append(parts, fmt.Sprintf("%s=%s", k, buf))
			default:
				parts = append(parts, fmt.Sprintf("%s=%v", k, t[k]))
			}
		}
		return strings.Join(parts, " "), nil
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
}
