package reputation

import (
	"errors"
	"net/netip"
)

// ErrUnparseable is returned by ParseEntry when a string is neither a valid
// IP address nor a valid CIDR network. Callers that ingest best-effort data
// (the store's InsertRecord, the CSV-driven importer) treat this as a
// warn-and-skip condition rather than a hard failure.
var ErrUnparseable = errors.New("reputation: not an IP address or CIDR network")

// Entry is a canonicalised exact IP or CIDR, identified by address family.
// Two Entry values with the same (String(), IsV4()) represent the same
// stored row — an exact IP and a full-width CIDR over the same address are
// the same entry.
type Entry struct {
	addr    netip.Addr
	prefix  netip.Prefix
	isExact bool
}

// ParseEntry parses a raw string as either a bare IP address or a CIDR
// network. A CIDR whose prefix length equals the family's full bit width is
// normalised to an exact-IP entry. A CIDR with a shorter prefix is
// canonicalised by masking off its host bits.
func ParseEntry(s string) (Entry, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		p = p.Masked()
		if p.Bits() == p.Addr().BitLen() {
			return Entry{addr: p.Addr(), isExact: true}, nil
		}
		return Entry{prefix: p}, nil
	}
	if a, err := netip.ParseAddr(s); err == nil {
		return Entry{addr: a, isExact: true}, nil
	}
	return Entry{}, ErrUnparseable
}

// IsExact reports whether the entry is a single address rather than a CIDR.
func (e Entry) IsExact() bool { return e.isExact }

// IsV4 reports whether the entry belongs to the IPv4 family.
func (e Entry) IsV4() bool {
	if e.isExact {
		return e.addr.Is4()
	}
	return e.prefix.Addr().Is4()
}

// Addr returns the entry's address. Only meaningful when IsExact is true.
func (e Entry) Addr() netip.Addr { return e.addr }

// Prefix returns the entry's canonical network. Only meaningful when
// IsExact is false.
func (e Entry) Prefix() netip.Prefix { return e.prefix }

// String renders the entry in its canonical form: a bare address for exact
// entries, "network/bits" for CIDR entries.
func (e Entry) String() string {
	if e.isExact {
		return e.addr.String()
	}
	return e.prefix.String()
}

// IPKey returns the fixed-width store key for an exact address: 4 bytes for
// IPv4, 16 for IPv6.
func IPKey(addr netip.Addr) []byte {
	if addr.Is4() {
		a4 := addr.As4()
		return append([]byte(nil), a4[:]...)
	}
	b := addr.As16()
	return append([]byte(nil), b[:]...)
}

// CIDRKey returns the fixed-width store key for a canonical CIDR: network
// bytes followed by one prefix-length byte (5 bytes for IPv4, 17 for IPv6).
func CIDRKey(p netip.Prefix) []byte {
	addr := p.Addr()
	if addr.Is4() {
		a4 := addr.As4()
		key := make([]byte, 5)
		copy(key, a4[:])
		key[4] = byte(p.Bits())
		return key
	}
	a16 := addr.As16()
	key := make([]byte, 17)
	copy(key, a16[:])
	key[16] = byte(p.Bits())
	return key
}

// KeyToIP decodes a fixed-width exact-IP store key back into an address.
// Returns false if key is neither 4 nor 16 bytes.
func KeyToIP(key []byte) (netip.Addr, bool) {
	switch len(key) {
	case 4:
		var a4 [4]byte
		copy(a4[:], key)
		return netip.AddrFrom4(a4), true
	case 16:
		var a16 [16]byte
		copy(a16[:], key)
		return netip.AddrFrom16(a16), true
	default:
		return netip.Addr{}, false
	}
}

// KeyToCIDR decodes a fixed-width CIDR store key back into a prefix.
// Returns false if key is neither 5 nor 17 bytes.
func KeyToCIDR(key []byte) (netip.Prefix, bool) {
	switch len(key) {
	case 5:
		var a4 [4]byte
		copy(a4[:], key[:4])
		return netip.PrefixFrom(netip.AddrFrom4(a4), int(key[4])), true
	case 17:
		var a16 [16]byte
		copy(a16[:], key[:16])
		return netip.PrefixFrom(netip.AddrFrom16(a16), int(key[16])), true
	default:
		return netip.Prefix{}, false
	}
}
