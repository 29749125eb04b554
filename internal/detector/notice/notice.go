// Package notice holds the detector modules that evaluate flows carrying
// an upstream classifier's notice annotation, published on the new_notice
// topic. Each module checks exactly one annotation tag and records one
// evidence entry per matching flow.
package notice

import (
	"FlowSentry/internal/ledger"
	"FlowSentry/internal/model"
	"fmt"
	"log"
	"strings"
)

// sourceTag names the upstream classifier whose annotations these modules
// evaluate.
const sourceTag = "Zeek"

func record(l *ledger.Ledger, env *model.Envelope, ev model.Evidence) {
	ev.Timestamp = env.Flow.TS
	ev.SourceTag = sourceTag
	if _, err := l.AddEvidence(env.ProfileID, env.TWID, ev); err != nil {
		log.Printf("Failed to record %s evidence for %s/%s: %v", ev.Kind, env.ProfileID, env.TWID, err)
	}
}

// VerticalPortscan flags flows annotated as a port scan against one host.
type VerticalPortscan struct {
	ledger *ledger.Ledger
}

func NewVerticalPortscan(l *ledger.Ledger) *VerticalPortscan {
	return &VerticalPortscan{ledger: l}
}

func (d *VerticalPortscan) Name() string { return "vertical-portscan" }

func (d *VerticalPortscan) Analyze(msg *model.Envelope) bool {
	if !msg.IsForTopic(model.TopicNewNotice) {
		return false
	}
	if strings.Contains(msg.Flow.Note, "Port_Scan") {
		record(d.ledger, msg, model.Evidence{
			Kind:        model.KindVerticalPortscan,
			ThreatLevel: model.ThreatLevelHigh,
			Description: fmt.Sprintf("vertical port scan from %s against %s", msg.Flow.SAddr, msg.Flow.DAddr),
		})
	}
	return true
}

// HorizontalPortscan flags flows annotated as a scan of one port across
// many addresses.
type HorizontalPortscan struct {
	ledger *ledger.Ledger
}

func NewHorizontalPortscan(l *ledger.Ledger) *HorizontalPortscan {
	return &HorizontalPortscan{ledger: l}
}

func (d *HorizontalPortscan) Name() string { return "horizontal-portscan" }

func (d *HorizontalPortscan) Analyze(msg *model.Envelope) bool {
	if !msg.IsForTopic(model.TopicNewNotice) {
		return false
	}
	if strings.Contains(msg.Flow.Note, "Address_Scan") {
		record(d.ledger, msg, model.Evidence{
			Kind:        model.KindHorizontalPortscan,
			ThreatLevel: model.ThreatLevelHigh,
			Description: fmt.Sprintf("horizontal scan from %s on port %d/%s", msg.Flow.SAddr, msg.Flow.DPort, msg.Flow.Proto),
		})
	}
	return true
}

// PasswordGuessing flags flows annotated as repeated authentication
// failures.
type PasswordGuessing struct {
	ledger *ledger.Ledger
}

func NewPasswordGuessing(l *ledger.Ledger) *PasswordGuessing {
	return &PasswordGuessing{ledger: l}
}

func (d *PasswordGuessing) Name() string { return "password-guessing" }

func (d *PasswordGuessing) Analyze(msg *model.Envelope) bool {
	if !msg.IsForTopic(model.TopicNewNotice) {
		return false
	}
	if strings.Contains(msg.Flow.Note, "Password_Guessing") {
		record(d.ledger, msg, model.Evidence{
			Kind:        model.KindPasswordGuessing,
			ThreatLevel: model.ThreatLevelMedium,
			Description: fmt.Sprintf("password guessing from %s against %s:%d", msg.Flow.SAddr, msg.Flow.DAddr, msg.Flow.DPort),
		})
	}
	return true
}
