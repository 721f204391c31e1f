// Package devices provides the command that lists audio devices and host
// capabilities.
package devices

import (
	"fmt"
	"io"
	"strings"
	"time"

	ma "github.com/gen2brain/malgo"
	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"

	"github.com/tphakala/rtsync/internal/audiocore/engines/headless"
	"github.com/tphakala/rtsync/internal/audiocore/engines/malgo"
	"github.com/tphakala/rtsync/internal/audiocore/engines/oto"
	"github.com/tphakala/rtsync/internal/conf"
)

const bytesPerMiB = 1 << 20

// Command creates the devices command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices and host CPU features",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			printHost(out)
			fmt.Fprintln(out)
			return printDevices(out, settings.Audio.Backend)
		},
	}
}

// simdFeatures lists the CPU features the SIMD block math can use.
func simdFeatures() []string {
	candidates := []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"SSE2", cpuid.SSE2},
		{"SSE4.1", cpuid.SSE4},
		{"AVX", cpuid.AVX},
		{"AVX2", cpuid.AVX2},
		{"FMA3", cpuid.FMA3},
		{"AVX512F", cpuid.AVX512F},
		{"ASIMD", cpuid.ASIMD},
	}
	var found []string
	for _, c := range candidates {
		if cpuid.CPU.Supports(c.id) {
			found = append(found, c.name)
		}
	}
	return found
}

func printHost(out io.Writer) {
	fmt.Fprintf(out, "CPU:      %s (%d cores, %d threads)\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
	features := simdFeatures()
	if len(features) == 0 {
		features = []string{"none"}
	}
	fmt.Fprintf(out, "SIMD:     %s\n", strings.Join(features, " "))

	if info, err := host.Info(); err == nil {
		fmt.Fprintf(out, "Host:     %s %s (%s, kernel %s)\n",
			info.Platform, info.PlatformVersion, info.KernelArch, info.KernelVersion)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(out, "Memory:   %d MiB total, %d MiB available\n",
			vm.Total/bytesPerMiB, vm.Available/bytesPerMiB)
	}
}

func printDevices(out io.Writer, backend string) error {
	switch backend {
	case headless.Name:
		fmt.Fprintln(out, "headless backend: no devices, the input is a generated test tone")
		return nil
	case oto.Name:
		fmt.Fprintln(out, "oto backend: playback through the system default output only")
		return nil
	}

	cache := malgo.NewDeviceCache(time.Minute)
	kinds := []struct {
		title string
		kind  ma.DeviceType
	}{
		{"Capture devices", ma.Capture},
		{"Playback devices", ma.Playback},
	}
	for _, k := range kinds {
		devices, err := cache.Devices(k.kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s:\n", k.title)
		if len(devices) == 0 {
			fmt.Fprintln(out, "  (none)")
		}
		for _, d := range devices {
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Fprintf(out, " %s %d: %s [%s]\n", marker, d.Index, d.Name, d.ID)
		}
	}
	return nil
}
