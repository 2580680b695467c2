package tokenizer

// ControlTokens are the vocabulary-specific ids the chat loop treats
// specially. A negative value means "not available".
type ControlTokens struct {
	EndOfText       int
	EndOfLine       int
	DoubleEndOfLine int
}

// ResolveControlTokens fills unset (negative) fields of cfg from v: end of
// text falls back to id 0, line breaks to the entries for "\n" and "\n\n".
func ResolveControlTokens(v *Vocabulary, cfg ControlTokens) ControlTokens {
	out := cfg
	if out.EndOfText < 0 {
		out.EndOfText = 0
	}
	if out.EndOfLine < 0 {
		if id, ok := v.Lookup([]byte("\n")); ok {
			out.EndOfLine = id
		}
	}
	if out.DoubleEndOfLine < 0 {
		if id, ok := v.Lookup([]byte("\n\n")); ok {
			out.DoubleEndOfLine = id
		}
	}
	return out
}

// UnsetControlTokens returns a ControlTokens with every field unset.
func UnsetControlTokens() ControlTokens {
	return ControlTokens{EndOfText: -1, EndOfLine: -1, DoubleEndOfLine: -1}
}

// SplitLastEndOfLine rewrites a trailing double line break token into two
// single line break tokens. Models were trained on "\n\n" as two tokens even
// though the tokenizer prefers the merged entry.
func SplitLastEndOfLine(ids []int, c ControlTokens) []int {
	if len(ids) == 0 || c.DoubleEndOfLine < 0 || c.EndOfLine < 0 || ids[len(ids)-1] != c.DoubleEndOfLine {
		return ids
	}
	out := make([]int, 0, len(ids)+1)
	out = append(out, ids[:len(ids)-1]...)
	return append(out, c.EndOfLine, c.EndOfLine)
}
