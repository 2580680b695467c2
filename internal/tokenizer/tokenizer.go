package tokenizer

// Tokenizer defines the minimal interface used by the generation loop and
// the CLI. Decode never fails: malformed or partial UTF-8 is replaced with
// U+FFFD.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) string
}
