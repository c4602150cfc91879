// Package report renders the per-cycle status block printed by the relay.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"cloudpico-bthome/internal/bthome"
	"cloudpico-bthome/internal/dutycycle"
)

const separator = "----"

// Snapshot is everything one status block shows.
type Snapshot struct {
	Time   time.Time
	TimeOK bool

	Indoor bthome.Reading

	Outdoor dutycycle.Remote
	NowMs   uint32
}

// Write renders s to w.
func Write(w io.Writer, s Snapshot) error {
	var b strings.Builder

	if s.TimeOK {
		fmt.Fprintf(&b, "Time: %s\n", s.Time.Format(time.DateTime))
	} else {
		b.WriteString("Time: (RTC not ready)\n")
	}

	b.WriteString("Indoor : ")
	b.WriteString(indoor(s.Indoor))
	b.WriteByte('\n')

	b.WriteString("Outdoor: ")
	b.WriteString(outdoor(s.Outdoor, s.NowMs))
	b.WriteByte('\n')

	b.WriteString(separator)
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

func indoor(r bthome.Reading) string {
	if !r.Valid {
		return "(sensor not ready)"
	}
	var parts []string
	if r.HasTemperature() {
		parts = append(parts, fmt.Sprintf("%.2f C", r.Temperature))
	}
	if r.HasHumidity() {
		parts = append(parts, fmt.Sprintf("%.2f %%RH", r.Humidity))
	}
	if len(parts) == 0 {
		return "(sensor not ready)"
	}
	return strings.Join(parts, ", ")
}

func outdoor(r dutycycle.Remote, nowMs uint32) string {
	if !r.Valid {
		return "(no data yet)"
	}

	var b strings.Builder
	if r.Encrypted {
		b.WriteString("(encrypted BTHome) ")
	} else {
		if !math.IsNaN(r.Temperature) {
			fmt.Fprintf(&b, "%.1f C, ", r.Temperature)
		}
		if !math.IsNaN(r.Humidity) {
			fmt.Fprintf(&b, "%.0f %%RH, ", r.Humidity)
		}
		if !math.IsNaN(r.Battery) {
			fmt.Fprintf(&b, "%.0f %% batt, ", r.Battery)
		}
		if r.PacketID >= 0 {
			fmt.Fprintf(&b, "pid %d, ", r.PacketID)
		}
		if r.HasButton {
			fmt.Fprintf(&b, "button %s, ", r.Button)
		}
	}
	fmt.Fprintf(&b, "RSSI %d, seen %ds ago", r.RSSI, r.AgeMs(nowMs)/1000)
	return b.String()
}
