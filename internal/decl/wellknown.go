package decl

import "golang.org/x/text/unicode/norm"

// Identifiers the distributed-actor runtime relies on. A remote proxy only
// ever initializes these two stored properties.
const (
	IdentID          = "id"
	IdentActorSystem = "actorSystem"
)

// normalizeIdent returns the NFC form of an identifier so that comparisons
// against well-known names do not depend on how the source was encoded.
func normalizeIdent(name string) string {
	return norm.NFC.String(name)
}

// IsRemoteProxyField reports whether a stored field is one a remote proxy
// owns: a nonisolated id or actorSystem property.
func IsRemoteProxyField(f *Field) bool {
	if f == nil || f.Isolation == FieldActorInstance {
		return false
	}
	name := normalizeIdent(f.Name)
	return name == IdentID || name == IdentActorSystem
}
