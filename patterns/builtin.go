package patterns

// Built-in indicator patterns. Detectors look these up by constant, so the
// source text must stay stable.
const (
	EncodedCommand       = `\-enc.*[A-Za-z0-9/+=]{100}`
	EncodedCommandPrefix = `^.* \-Enc(odedCommand)? `
	FromBase64           = `:FromBase64String\(`
	FromBase64Prefix     = `^.*:FromBase64String\('*`
	QuotedTail           = `'.*$`
	GzipDecompress       = `Compression.GzipStream.*Decompress`
	CommonSymbols        = `[a-z0-9/¥;:|.]`
	BinaryDigits         = `[01]`
)

// Builtins returns the built-in patterns in registration order.
func Builtins() []string {
	return []string{
		EncodedCommand,
		EncodedCommandPrefix,
		FromBase64,
		FromBase64Prefix,
		QuotedTail,
		GzipDecompress,
		CommonSymbols,
		BinaryDigits,
	}
}

// RegisterBuiltins inserts every built-in into r. A built-in that does not
// compile panics.
func RegisterBuiltins(r *Registry) {
	for _, src := range Builtins() {
		if err := r.Insert(src, OriginBuiltin); err != nil {
			panic(err)
		}
	}
}
