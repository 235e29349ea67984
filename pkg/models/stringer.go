package models

// String methods for the custom string types.
// These are required for toon serialization, which uses fmt.Stringer.

// ImportKind
func (k ImportKind) String() string { return string(k) }

// DefinitionKind
func (k DefinitionKind) String() string { return string(k) }

// Severity
func (s Severity) String() string { return string(s) }

// EntryReason
func (r EntryReason) String() string { return string(r) }

// CloneType
func (c CloneType) String() string { return string(c) }

// FragmentKind
func (k FragmentKind) String() string { return string(k) }
