package research

import "github.com/Kocoro-lab/toolscout/internal/util"

// Truncator bounds text fed to a model. Limits count runes, never bytes.
type Truncator struct {
	Limit int
}

// Truncate cuts content longer than the limit to exactly Limit runes.
func (t Truncator) Truncate(content string) string {
	return util.TruncateRunes(content, t.Limit)
}
