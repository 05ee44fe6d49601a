// Package reputation defines the reputation descriptor shared by the store,
// the trie and the lookup engine, and the helpers that canonicalise a raw
// CSV/query entry string into an exact IP or CIDR.
package reputation

// Flags is the nine-boolean reputation descriptor attached to every entry.
// Merge is bitwise OR: commutative, associative, identity is the zero value.
type Flags struct {
	AnonBlock   bool
	Proxy       bool
	VPN         bool
	CDN         bool
	PublicWifi  bool
	RangeBlock  bool
	SchoolBlock bool
	Tor         bool
	WebHost     bool
}

// Merge ORs each flag of other into f and returns the result.
func (f Flags) Merge(other Flags) Flags {
	return Flags{
		AnonBlock:   f.AnonBlock || other.AnonBlock,
		Proxy:       f.Proxy || other.Proxy,
		VPN:         f.VPN || other.VPN,
		CDN:         f.CDN || other.CDN,
		PublicWifi:  f.PublicWifi || other.PublicWifi,
		RangeBlock:  f.RangeBlock || other.RangeBlock,
		SchoolBlock: f.SchoolBlock || other.SchoolBlock,
		Tor:         f.Tor || other.Tor,
		WebHost:     f.WebHost || other.WebHost,
	}
}

// IsZero reports whether every flag is false.
func (f Flags) IsZero() bool {
	return f == Flags{}
}
