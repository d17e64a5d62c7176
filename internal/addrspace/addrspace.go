// Package addrspace parses CIDR notation and port ranges and converts
// between textual IP addresses and a fixed 16-byte binary form.
package addrspace

import (
	"bytes"
	"fmt"
	"iter"
	"math/big"
	"net"
	"strconv"
	"strings"
)

// Binary is the fixed-width address form shared by both families.
// IPv6 addresses occupy all 16 bytes; IPv4 addresses are left-zero-padded
// so one binary column can hold both.
type Binary [16]byte

// AddrToBinary converts a textual IPv4 or IPv6 address to its 16-byte form.
// The family is detected from the text: presence of ':' means IPv6.
func AddrToBinary(s string) (Binary, error) {
	var b Binary
	ip := net.ParseIP(s)
	if ip == nil {
		return b, fmt.Errorf("invalid address %q", s)
	}
	if strings.Contains(s, ":") {
		copy(b[:], ip.To16())
		return b, nil
	}
	v4 := ip.To4()
	if v4 == nil {
		return b, fmt.Errorf("invalid IPv4 address %q", s)
	}
	copy(b[12:], v4)
	return b, nil
}

// BinaryToAddr converts a 16-byte address back to text. Decoding rule:
// strip leading NUL bytes; if exactly 4 bytes remain the address is IPv4,
// otherwise the full 16 bytes are formatted as IPv6. 0.x.x.x addresses
// therefore do not round-trip; they collide with low IPv6 space.
func BinaryToAddr(b Binary) string {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	if len(b)-i == 4 {
		return net.IP(b[12:]).String()
	}
	return net.IP(b[:]).String()
}

// Range is one parsed CIDR entry: count 2^(Bits-Prefix) addresses
// starting at Start.
type Range struct {
	Start  Binary
	Prefix int
	Bits   int
}

// ParseCIDR parses "start/prefix" notation. Unlike net.ParseCIDR the start
// address is kept as given rather than masked to the network base.
func ParseCIDR(s string) (Range, error) {
	addrPart, prefixPart, ok := strings.Cut(s, "/")
	if !ok {
		return Range{}, fmt.Errorf("invalid CIDR %q: missing prefix", s)
	}
	start, err := AddrToBinary(addrPart)
	if err != nil {
		return Range{}, fmt.Errorf("invalid CIDR %q: %w", s, err)
	}
	bits := 32
	if strings.Contains(addrPart, ":") {
		bits = 128
	}
	prefix, err := strconv.Atoi(prefixPart)
	if err != nil || prefix < 0 || prefix > bits {
		return Range{}, fmt.Errorf("invalid CIDR %q: prefix out of range", s)
	}
	return Range{Start: start, Prefix: prefix, Bits: bits}, nil
}

// Hosts returns the number of addresses in the range, 2^(Bits-Prefix).
func (r Range) Hosts() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(r.Bits-r.Prefix))
}

// Addrs iterates the range's addresses in ascending order without
// materializing them.
func (r Range) Addrs() iter.Seq[Binary] {
	return func(yield func(Binary) bool) {
		hosts := r.Hosts()
		cur := r.Start
		for n := new(big.Int); n.Cmp(hosts) < 0; n.Add(n, bigOne) {
			if !yield(cur) {
				return
			}
			cur = increment(cur)
		}
	}
}

// Contains reports whether addr falls in [Start, Start+Hosts).
func (r Range) Contains(addr Binary) bool {
	if bytes.Compare(addr[:], r.Start[:]) < 0 {
		return false
	}
	end := new(big.Int).SetBytes(r.Start[:])
	end.Add(end, r.Hosts())
	return new(big.Int).SetBytes(addr[:]).Cmp(end) < 0
}

var bigOne = big.NewInt(1)

// increment adds one to the big-endian address, wrapping at the top.
func increment(b Binary) Binary {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			break
		}
	}
	return b
}
