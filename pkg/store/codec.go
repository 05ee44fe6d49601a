package store

import "github.com/netrep/proxyd/pkg/reputation"

// Flags are persisted as a single two-byte bitmask so the store never pays
// for a general-purpose encoding of a fixed nine-bit struct.
const flagsEncodedLen = 2

const (
	bitAnonBlock uint16 = 1 << iota
	bitProxy
	bitVPN
	bitCDN
	bitPublicWifi
	bitRangeBlock
	bitSchoolBlock
	bitTor
	bitWebHost
)

func encodeFlags(f reputation.Flags) []byte {
	var mask uint16
	if f.AnonBlock {
		mask |= bitAnonBlock
	}
	if f.Proxy {
		mask |= bitProxy
	}
	if f.VPN {
		mask |= bitVPN
	}
	if f.CDN {
		mask |= bitCDN
	}
	if f.PublicWifi {
		mask |= bitPublicWifi
	}
	if f.RangeBlock {
		mask |= bitRangeBlock
	}
	if f.SchoolBlock {
		mask |= bitSchoolBlock
	}
	if f.Tor {
		mask |= bitTor
	}
	if f.WebHost {
		mask |= bitWebHost
	}
	return []byte{byte(mask), byte(mask >> 8)}
}

func decodeFlags(b []byte) (reputation.Flags, bool) {
	if len(b) != flagsEncodedLen {
		return reputation.Flags{}, false
	}
	mask := uint16(b[0]) | uint16(b[1])<<8
	return reputation.Flags{
		AnonBlock:   mask&bitAnonBlock != 0,
		Proxy:       mask&bitProxy != 0,
		VPN:         mask&bitVPN != 0,
		CDN:         mask&bitCDN != 0,
		PublicWifi:  mask&bitPublicWifi != 0,
		RangeBlock:  mask&bitRangeBlock != 0,
		SchoolBlock: mask&bitSchoolBlock != 0,
		Tor:         mask&bitTor != 0,
		WebHost:     mask&bitWebHost != 0,
	}, true
}
