package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyRef        = "ref"
	KeyTag        = "tag"
	KeyTrigger    = "trigger"
	KeyPlatform   = "platform"
	KeyStep       = "step"
	KeyState      = "state"
	KeyAsset      = "asset"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyName       = "name"
	KeyGroup      = "group"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Ref(r string) slog.Attr          { return slog.String(KeyRef, r) }
func Tag(t string) slog.Attr          { return slog.String(KeyTag, t) }
func Trigger(t string) slog.Attr      { return slog.String(KeyTrigger, t) }
func Platform(p string) slog.Attr     { return slog.String(KeyPlatform, p) }
func Step(s string) slog.Attr         { return slog.String(KeyStep, s) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Asset(a string) slog.Attr        { return slog.String(KeyAsset, a) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Name(n string) slog.Attr         { return slog.String(KeyName, n) }
func Group(g string) slog.Attr        { return slog.String(KeyGroup, g) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
