// Package ngramload resolves the -model/-arpa flag pair every CLI
// front-end that scores against an external n-gram model (C9) shares:
// either a pre-built gob-encoded fslm.Hashed from a previous run, or
// ARPA text compiled on the fly via fslm.FromARPAFile. Folds what used
// to be a standalone compile step into the tools that actually need a
// model, rather than requiring a separate preprocessing command.
package ngramload

import (
	"flag"
	"fmt"

	"github.com/aalto-speech/classngram/fslm"
)

// Flags holds the -model/-arpa/-arpa_scale flags for one model slot,
// registered under the given prefix (e.g. "" for a single-model tool,
// "model1_"/"model2_" for interppl's multiple slots).
type Flags struct {
	model string
	arpa  string
	scale float64
	name  string
}

// Register adds -<prefix>model, -<prefix>arpa and -<prefix>arpa_scale
// flags to the default flag set. prefix may be empty.
func Register(prefix, usage string) *Flags {
	f := &Flags{name: prefix}
	flag.StringVar(&f.model, prefix+"model", "", usage+": gob-encoded fslm.Hashed")
	flag.StringVar(&f.arpa, prefix+"arpa", "", usage+": ARPA text, compiled on load")
	flag.Float64Var(&f.scale, prefix+"arpa_scale", 1.5, usage+": hash table scale when loading from ARPA text")
	return f
}

// IsSet reports whether either -model or -arpa was given, for callers
// where the model slot is optional (e.g. interppl's third component).
func (f *Flags) IsSet() bool {
	return f.model != "" || f.arpa != ""
}

// Load resolves the registered flags into an fslm.Model. Exactly one of
// -model/-arpa must have been given.
func (f *Flags) Load() (fslm.Model, error) {
	switch {
	case f.model != "" && f.arpa != "":
		return nil, fmt.Errorf("ngramload: -%smodel and -%sarpa are mutually exclusive", f.name, f.name)
	case f.model != "":
		return fslm.FromGobFile(f.model)
	case f.arpa != "":
		return fslm.FromARPAFile(f.arpa, f.scale)
	default:
		return nil, fmt.Errorf("ngramload: one of -%smodel or -%sarpa is required", f.name, f.name)
	}
}
