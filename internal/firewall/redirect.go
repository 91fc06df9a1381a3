// Package firewall installs the NAT rules that steer AP client traffic to
// the captive portal, and removes them again.
package firewall

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-iptables/iptables"
	"github.com/sirupsen/logrus"
)

const TableNAT = "nat"

// Rules is the append/delete capability of the system firewall.
// *iptables.IPTables satisfies it.
type Rules interface {
	Append(table, chain string, rulespec ...string) error
	Delete(table, chain string, rulespec ...string) error
}

var _ Rules = (*iptables.IPTables)(nil)

// Rule is one table/chain/spec triple. Spec is whitespace separated.
type Rule struct {
	Table string
	Chain string
	Spec  string
}

func (r Rule) String() string {
	return fmt.Sprintf("-t %s -A %s %s", r.Table, r.Chain, r.Spec)
}

func (r Rule) args() []string { return strings.Fields(r.Spec) }

// RuleError reports the rule that failed to apply.
type RuleError struct {
	Rule Rule
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("apply %q: %v", e.Rule.String(), e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// PortalRules returns, in order, the DNAT rules for HTTP and HTTPS arriving
// on iface followed by the MASQUERADE rule. portal is "addr:port".
func PortalRules(iface, portal string) []Rule {
	return []Rule{
		{Table: TableNAT, Chain: "PREROUTING", Spec: fmt.Sprintf("-i %s -p tcp --dport 80 -j DNAT --to-destination %s", iface, portal)},
		{Table: TableNAT, Chain: "PREROUTING", Spec: fmt.Sprintf("-i %s -p tcp --dport 443 -j DNAT --to-destination %s", iface, portal)},
		{Table: TableNAT, Chain: "POSTROUTING", Spec: "-j MASQUERADE"},
	}
}

// DNSRule sends DNS queries arriving on iface to target ("addr:port").
func DNSRule(iface, target string) Rule {
	return Rule{Table: TableNAT, Chain: "PREROUTING", Spec: fmt.Sprintf("-i %s -p udp --dport 53 -j DNAT --to-destination %s", iface, target)}
}

// Redirector appends rules in order and remembers what it applied.
type Redirector struct {
	ipt      Rules
	log      logrus.FieldLogger
	rollback bool

	mu      sync.Mutex
	applied []Rule
}

// New returns a Redirector backed by the system iptables binary.
func New(rollback bool, log logrus.FieldLogger) (*Redirector, error) {
	ipt, err := iptables.New()
	if err != nil {
		return nil, fmt.Errorf("init iptables: %w", err)
	}
	return NewWithRules(ipt, rollback, log), nil
}

func NewWithRules(ipt Rules, rollback bool, log logrus.FieldLogger) *Redirector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Redirector{ipt: ipt, log: log, rollback: rollback}
}

// Apply installs the portal rules for iface. The first failure stops the
// sequence; with rollback enabled the rules this call already added are
// deleted again.
func (r *Redirector) Apply(iface, portal string) error {
	return r.appendAll(PortalRules(iface, portal))
}

// RedirectDNS installs DNSRule(iface, target).
func (r *Redirector) RedirectDNS(iface, target string) error {
	return r.appendAll([]Rule{DNSRule(iface, target)})
}

func (r *Redirector) appendAll(rules []Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var done []Rule
	for _, rule := range rules {
		if err := r.ipt.Append(rule.Table, rule.Chain, rule.args()...); err != nil {
			rerr := &RuleError{Rule: rule, Err: err}
			if r.rollback && len(done) > 0 {
				if rbErr := r.deleteReverse(done); rbErr != nil {
					return errors.Join(rerr, fmt.Errorf("rollback: %w", rbErr))
				}
				r.log.Infof("[NAT] rolled back %d rule(s)", len(done))
			} else {
				r.applied = append(r.applied, done...)
			}
			return rerr
		}
		r.log.WithField("rule", rule.String()).Info("[NAT] rule applied")
		done = append(done, rule)
	}
	r.applied = append(r.applied, done...)
	return nil
}

// Remove deletes every rule still tracked, newest first.
func (r *Redirector) Remove() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.deleteReverse(r.applied)
	r.applied = nil
	return err
}

// Applied returns the rules currently tracked, oldest first.
func (r *Redirector) Applied() []Rule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Rule(nil), r.applied...)
}

func (r *Redirector) deleteReverse(rules []Rule) error {
	var errs []error
	for i := len(rules) - 1; i >= 0; i-- {
		rule := rules[i]
		if err := r.ipt.Delete(rule.Table, rule.Chain, rule.args()...); err != nil {
			errs = append(errs, fmt.Errorf("delete %q: %w", rule.String(), err))
			continue
		}
		r.log.WithField("rule", rule.String()).Debug("[NAT] rule removed")
	}
	return errors.Join(errs...)
}
