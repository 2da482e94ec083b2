package ttlcache

// Namespace is a closed set of cache partitions. Each namespace is cleared
// independently; all share the store's TTL.
type Namespace uint8

const (
	Transactions Namespace = iota
	KYCStatus
	TrustScore
	Loans

	numNamespaces // sentinel, keep last
)

var namespaceNames = [numNamespaces]string{
	Transactions: "transactions",
	KYCStatus:    "kyc-status",
	TrustScore:   "trust-score",
	Loans:        "loans",
}

// String returns the wire name of the namespace (e.g. "kyc-status").
func (n Namespace) String() string {
	if !n.valid() {
		return "unknown"
	}
	return namespaceNames[n]
}

func (n Namespace) valid() bool { return n < numNamespaces }

// ParseNamespace maps a wire name back to its Namespace.
func ParseNamespace(s string) (Namespace, bool) {
	for i, name := range namespaceNames {
		if name == s {
			return Namespace(i), true
		}
	}
	return 0, false
}

// Namespaces returns every namespace in declaration order.
func Namespaces() []Namespace {
	out := make([]Namespace, numNamespaces)
	for i := range out {
		out[i] = Namespace(i)
	}
	return out
}

// MarshalText implements encoding.TextMarshaler so namespaces can be used
// as JSON map keys and YAML scalars.
func (n Namespace) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Namespace) UnmarshalText(b []byte) error {
	ns, ok := ParseNamespace(string(b))
	if !ok {
		return &UnknownNamespaceError{Name: string(b)}
	}
	*n = ns
	return nil
}

// UnknownNamespaceError is returned when decoding a namespace name that is
// not part of the closed set.
type UnknownNamespaceError struct {
	Name string
}

func (e *UnknownNamespaceError) Error() string {
	return "ttlcache: unknown namespace " + `"` + e.Name + `"`
}
