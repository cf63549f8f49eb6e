package syspower

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// RAPLReader reads cumulative CPU package and DRAM energy counters, in
// microjoules, summed across every socket. The original agent reads these
// through PAPI's rapl component (PACKAGE_ENERGY:PACKAGEk,
// DRAM_ENERGY:PACKAGEk) backed by a hwloc socket count; PAPI/hwloc are
// out-of-scope external libraries for this spec (spec.md §1), so this is a
// direct /sys/class/powercap/intel-rapl reader instead, the Go-native path
// to the same kernel counters.
type RAPLReader interface {
	// Available reports whether any RAPL zone was found on this host.
	Available() bool
	// ReadMicrojoules returns the current cumulative package and dram
	// energy counters, summed across sockets.
	ReadMicrojoules() (packageUJ, dramUJ uint64, err error)
}

const powercapRoot = "/sys/class/powercap"

var socketZoneRe = regexp.MustCompile(`^intel-rapl:\d+$`)

// sysfsRAPLReader implements RAPLReader over /sys/class/powercap.
type sysfsRAPLReader struct {
	root    string
	zones   []raplZone
}

type raplZone struct {
	packagePath string
	dramPath    string // "" if this socket has no dram sub-zone
}

// NewRAPLReader discovers top-level intel-rapl:<socket> zones under root
// (use "" for the real /sys/class/powercap) and their dram sub-zones.
func NewRAPLReader(root string) RAPLReader {
	if root == "" {
		root = powercapRoot
	}
	r := &sysfsRAPLReader{root: root}
	r.discover()
	return r
}

func (r *sysfsRAPLReader) discover() {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !socketZoneRe.MatchString(e.Name()) {
			continue
		}
		zoneDir := filepath.Join(r.root, e.Name())
		zone := raplZone{packagePath: filepath.Join(zoneDir, "energy_uj")}
		if _, err := os.Stat(zone.packagePath); err != nil {
			continue
		}

		subEntries, err := os.ReadDir(zoneDir)
		if err == nil {
			for _, sub := range subEntries {
				if strings.HasPrefix(sub.Name(), e.Name()+":") && strings.Contains(strings.ToLower(readNameFile(filepath.Join(zoneDir, sub.Name()))), "dram") {
					zone.dramPath = filepath.Join(zoneDir, sub.Name(), "energy_uj")
				}
			}
		}
		r.zones = append(r.zones, zone)
	}
}

func readNameFile(dir string) string {
	b, err := os.ReadFile(filepath.Join(dir, "name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (r *sysfsRAPLReader) Available() bool {
	return len(r.zones) > 0
}

func (r *sysfsRAPLReader) ReadMicrojoules() (packageUJ, dramUJ uint64, err error) {
	for _, z := range r.zones {
		v, rerr := readUintFile(z.packagePath)
		if rerr != nil {
			return 0, 0, rerr
		}
		packageUJ += v
		if z.dramPath != "" {
			dv, rerr := readUintFile(z.dramPath)
			if rerr == nil {
				dramUJ += dv
			}
		}
	}
	return packageUJ, dramUJ, nil
}

func readUintFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, nil
	}
	return strconv.ParseUint(strings.TrimSpace(scanner.Text()), 10, 64)
}

// SocketCount reports how many top-level RAPL zones (sockets) were found.
func (r *sysfsRAPLReader) SocketCount() int {
	return len(r.zones)
}

// DRAMDenominator returns the CPU-model-dependent scaling factor the
// original connector applies to raw DRAM energy values: 15.3 for model 15,
// 1.0 otherwise (rapl_get_denominator in the C source, which reads this via
// cpuid; /proc/cpuinfo's "model" field carries the same value on Linux).
func DRAMDenominator(cpuinfoPath string) float64 {
	if cpuinfoPath == "" {
		cpuinfoPath = "/proc/cpuinfo"
	}
	f, err := os.Open(cpuinfoPath)
	if err != nil {
		return 1.0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "model\t") && !strings.HasPrefix(line, "model ") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		model, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		if model == 15 {
			return 15.3
		}
		return 1.0
	}
	return 1.0
}
