package registry

import (
	"crypto/sha256"
	"fmt"
)

// Kind tags the entity a record describes. All kinds share one record layout;
// the kind only changes the address derivation and the stored discriminator.
type Kind uint8

const (
	KindModel Kind = iota + 1
	KindDataset
	KindAnalysis
	KindContext
	KindInference
)

var kindNames = map[Kind]struct{ tag, typeName string }{
	KindModel:     {"model", "ModelRecord"},
	KindDataset:   {"dataset", "DatasetRecord"},
	KindAnalysis:  {"analysis", "AnalysisRecord"},
	KindContext:   {"context", "ContextRecord"},
	KindInference: {"inference", "InferenceRecord"},
}

// Kinds lists every kind in tag order.
func Kinds() []Kind {
	return []Kind{KindModel, KindDataset, KindAnalysis, KindContext, KindInference}
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n.tag
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// TypeName is the account type name hashed into the discriminator.
func (k Kind) TypeName() string { return kindNames[k].typeName }

// Discriminator is sha256("account:" + TypeName)[:8].
func (k Kind) Discriminator() [8]byte {
	sum := sha256.Sum256([]byte("account:" + k.TypeName()))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n.tag == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownKind, s)
}
