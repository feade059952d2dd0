package stalwart

import "strings"

// ForwardingScriptName is the name the forwarding script is stored under.
const ForwardingScriptName = "deliverability-forwarding"

// GenerateForwardScript renders a Sieve script redirecting to every rule's
// destination, or "" when there are none. Rules that keep a copy use the
// :copy extension so local delivery still happens.
func GenerateForwardScript(forwards []ForwardRule) string {
	if len(forwards) == 0 {
		return ""
	}

	var b strings.Builder
	for _, f := range forwards {
		if f.KeepCopy {
			b.WriteString("require [\"copy\"];\n")
			break
		}
	}
	for _, f := range forwards {
		b.WriteString("redirect ")
		if f.KeepCopy {
			b.WriteString(":copy ")
		}
		b.WriteString(sieveString(f.Destination))
		b.WriteString(";\n")
	}
	return b.String()
}

// sieveString quotes s as a Sieve string literal.
func sieveString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
