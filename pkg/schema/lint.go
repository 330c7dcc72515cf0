package schema

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// identifierFields lists, per kind, the JSON pointers of identifier lists
// (or single identifiers) compared byte-for-byte by the enforcement core.
var identifierFields = map[Kind][][]string{
	KindEnvelope: {{"intent", "verb"}, {"requiredCapabilities"}},
	KindSkill:    {{"capabilitiesProvided"}},
	KindPolicy:   {{"allowedVerbs"}},
	KindRobot:    {{"capabilities"}},
	KindAdapter:  {{"supportedVerbs"}, {"supportedCapabilities"}},
}

// IsNFC reports whether s is in Unicode Normalization Form C.
func IsNFC(s string) bool {
	return norm.NFC.IsNormalString(s)
}

func lintIdentifiers(kind Kind, doc any) []Cause {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil
	}

	var causes []Cause
	for _, path := range identifierFields[kind] {
		v, ptr := lookup(root, path)
		switch t := v.(type) {
		case string:
			if !IsNFC(t) {
				causes = append(causes, nfcCause(ptr, t))
			}
		case []any:
			for i, elem := range t {
				s, ok := elem.(string)
				if ok && !IsNFC(s) {
					causes = append(causes, nfcCause(fmt.Sprintf("%s/%d", ptr, i), s))
				}
			}
		}
	}
	return causes
}

func lookup(root map[string]any, path []string) (any, string) {
	var cur any = root
	ptr := ""
	for _, p := range path {
		ptr += "/" + p
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, ptr
		}
		cur = m[p]
	}
	return cur, ptr
}

func nfcCause(ptr, s string) Cause {
	return Cause{
		Path:    ptr,
		Message: fmt.Sprintf("identifier %q is not NFC-normalized (expected %q)", s, norm.NFC.String(s)),
	}
}
