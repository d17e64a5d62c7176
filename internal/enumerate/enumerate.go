// Package enumerate produces the lazy sequence of scan targets described
// by a job: every address of every CIDR, fanned out across ports and SNI
// hostnames, with excludes applied before yielding.
package enumerate

import (
	"iter"
	"log/slog"
	"math"
	"math/big"

	"github.com/certscope/certscope/internal/addrspace"
	"github.com/certscope/certscope/internal/store"
)

// Enumerator is a finite, restartable target sequence. Malformed CIDR or
// port entries are dropped with a warning at construction; a bad entry
// among many must not block the rest of the job.
type Enumerator struct {
	cidrs   []addrspace.Range
	ports   []addrspace.PortRange
	sni     map[string][]string
	exclude map[string]struct{}
}

// New builds an enumerator from a job definition and a resolved SNI map
// (textual ip → hostnames). SNI and exclude keys that parse as IP
// literals are rewritten into the form the address walk emits, so a
// non-canonical spelling (uppercase or expanded IPv6) still matches.
func New(job store.Job, sniMap map[string][]string) *Enumerator {
	e := &Enumerator{sni: make(map[string][]string, len(sniMap)), exclude: make(map[string]struct{})}
	for ip, names := range sniMap {
		key := canonical(ip)
		e.sni[key] = append(e.sni[key], names...)
	}
	for _, entry := range addrspace.SplitList(job.CIDRs) {
		r, err := addrspace.ParseCIDR(entry)
		if err != nil {
			slog.Warn("skipping malformed CIDR entry", "job", job.Name, "entry", entry, "err", err)
			continue
		}
		e.cidrs = append(e.cidrs, r)
	}
	for _, entry := range addrspace.SplitList(job.Ports) {
		r, err := addrspace.ParsePortRange(entry)
		if err != nil {
			slog.Warn("skipping malformed port entry", "job", job.Name, "entry", entry, "err", err)
			continue
		}
		e.ports = append(e.ports, r)
	}
	for _, entry := range addrspace.SplitList(job.ExcludeTargets) {
		e.exclude[canonical(entry)] = struct{}{}
	}
	return e
}

// canonical maps an IP literal to its canonical text; hostnames pass
// through unchanged.
func canonical(entry string) string {
	bin, err := addrspace.AddrToBinary(entry)
	if err != nil {
		return entry
	}
	return addrspace.BinaryToAddr(bin)
}

func (e *Enumerator) excluded(s string) bool {
	_, ok := e.exclude[s]
	return ok
}

// hostnames returns the SNI fan-out for one address: nil when the address
// is excluded, the single empty hostname when no SNI is configured, else
// the configured hostnames minus excluded ones (possibly empty).
func (e *Enumerator) hostnames(ipText string) []string {
	if e.excluded(ipText) {
		return nil
	}
	configured, ok := e.sni[ipText]
	if !ok || len(configured) == 0 {
		return []string{""}
	}
	names := make([]string, 0, len(configured))
	for _, n := range configured {
		if !e.excluded(n) {
			names = append(names, n)
		}
	}
	return names
}

// portCount is the summed size of all port ranges.
func (e *Enumerator) portCount() int64 {
	var n int64
	for _, r := range e.ports {
		n += int64(r.Size())
	}
	return n
}

// Count computes the total number of targets combinatorially, without
// materializing the sequence: the base product over all CIDRs and ports,
// corrected by a delta for each address with SNI or exclude entries.
func (e *Enumerator) Count() *big.Int {
	ports := big.NewInt(e.portCount())
	total := new(big.Int)
	for _, r := range e.cidrs {
		total.Add(total, new(big.Int).Mul(r.Hosts(), ports))
	}

	// Addresses with SNI configured or excluded deviate from the base
	// one-target-per-port assumption.
	special := make(map[string]struct{})
	for ip := range e.sni {
		special[ip] = struct{}{}
	}
	for entry := range e.exclude {
		special[entry] = struct{}{}
	}
	for ipText := range special {
		bin, err := addrspace.AddrToBinary(ipText)
		if err != nil {
			continue // hostname exclude literal, handled in the fan-out
		}
		occurrences := 0
		for _, r := range e.cidrs {
			if r.Contains(bin) {
				occurrences++
			}
		}
		if occurrences == 0 {
			continue
		}
		actual := int64(len(e.hostnames(ipText)))
		delta := new(big.Int).Mul(big.NewInt(int64(occurrences)), ports)
		delta.Mul(delta, big.NewInt(actual-1))
		total.Add(total, delta)
	}
	return total
}

// Total clamps Count to int64 for progress accounting.
func (e *Enumerator) Total() int64 {
	count := e.Count()
	if !count.IsInt64() {
		return math.MaxInt64
	}
	return count.Int64()
}

// All iterates the target sequence. The sequence is restartable: ranging
// a second time replays it from scratch.
func (e *Enumerator) All() iter.Seq[store.Target] {
	return func(yield func(store.Target) bool) {
		for _, cidr := range e.cidrs {
			for addr := range cidr.Addrs() {
				ipText := addrspace.BinaryToAddr(addr)
				names := e.hostnames(ipText)
				if len(names) == 0 {
					continue
				}
				for _, portRange := range e.ports {
					for port := range portRange.Ports {
						for _, name := range names {
							if !yield(store.Target{Addr: addr, Port: port, Hostname: name}) {
								return
							}
						}
					}
				}
			}
		}
	}
}

// Slice is a fixed target list satisfying the same source contract,
// used for rescan-only runs fed from the catalog.
type Slice []store.Target

func (s Slice) Total() int64 {
	return int64(len(s))
}

func (s Slice) All() iter.Seq[store.Target] {
	return func(yield func(store.Target) bool) {
		for _, t := range s {
			if !yield(t) {
				return
			}
		}
	}
}
