package firewall

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

type call struct {
	op    string
	table string
	chain string
	spec  string
}

// fakeRules records calls and fails the Nth append (1-based) when failAt > 0.
type fakeRules struct {
	calls     []call
	appends   int
	failAt    int
	deleteErr error
}

func (f *fakeRules) Append(table, chain string, rulespec ...string) error {
	f.appends++
	f.calls = append(f.calls, call{"append", table, chain, strings.Join(rulespec, " ")})
	if f.failAt > 0 && f.appends == f.failAt {
		return errors.New("iptables: exit status 1")
	}
	return nil
}

func (f *fakeRules) Delete(table, chain string, rulespec ...string) error {
	f.calls = append(f.calls, call{"delete", table, chain, strings.Join(rulespec, " ")})
	return f.deleteErr
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestApplyOrder(t *testing.T) {
	f := &fakeRules{}
	r := NewWithRules(f, true, quiet())

	if err := r.Apply("wlan0", "192.168.4.1:3000"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []call{
		{"append", "nat", "PREROUTING", "-i wlan0 -p tcp --dport 80 -j DNAT --to-destination 192.168.4.1:3000"},
		{"append", "nat", "PREROUTING", "-i wlan0 -p tcp --dport 443 -j DNAT --to-destination 192.168.4.1:3000"},
		{"append", "nat", "POSTROUTING", "-j MASQUERADE"},
	}
	if len(f.calls) != len(want) {
		t.Fatalf("calls = %v", f.calls)
	}
	for i := range want {
		if f.calls[i] != want[i] {
			t.Fatalf("call %d = %+v, want %+v", i, f.calls[i], want[i])
		}
	}
	if n := len(r.Applied()); n != 3 {
		t.Fatalf("tracked = %d, want 3", n)
	}
}

func TestApplyAbortsOnSecondFailure(t *testing.T) {
	f := &fakeRules{failAt: 2}
	r := NewWithRules(f, false, quiet())

	err := r.Apply("wlan0", "192.168.4.1:3000")
	var rerr *RuleError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want *RuleError", err)
	}
	if !strings.Contains(rerr.Rule.Spec, "--dport 443") {
		t.Fatalf("failing rule = %s", rerr.Rule)
	}
	if f.appends != 2 {
		t.Fatalf("appends = %d, third rule must not be attempted", f.appends)
	}
	for _, c := range f.calls {
		if c.chain == "POSTROUTING" {
			t.Fatalf("MASQUERADE attempted after failure")
		}
	}
	// without rollback the first rule stays tracked for Remove
	if n := len(r.Applied()); n != 1 {
		t.Fatalf("tracked = %d, want 1", n)
	}
}

func TestApplyRollsBackPartialFailure(t *testing.T) {
	f := &fakeRules{failAt: 3}
	r := NewWithRules(f, true, quiet())

	if err := r.Apply("wlan0", "10.0.0.1:3000"); err == nil {
		t.Fatalf("expected error")
	}

	var deletes []call
	for _, c := range f.calls {
		if c.op == "delete" {
			deletes = append(deletes, c)
		}
	}
	if len(deletes) != 2 {
		t.Fatalf("deletes = %v", deletes)
	}
	if !strings.Contains(deletes[0].spec, "--dport 443") || !strings.Contains(deletes[1].spec, "--dport 80") {
		t.Fatalf("rollback must run newest first: %v", deletes)
	}
	if n := len(r.Applied()); n != 0 {
		t.Fatalf("tracked after rollback = %d", n)
	}
}

func TestRemoveReverseOrder(t *testing.T) {
	f := &fakeRules{}
	r := NewWithRules(f, true, quiet())
	if err := r.Apply("wlan0", "10.0.0.1:3000"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := r.RedirectDNS("wlan0", "10.0.0.1:5300"); err != nil {
		t.Fatalf("dns: %v", err)
	}
	f.calls = nil

	if err := r.Remove(); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(f.calls) != 4 {
		t.Fatalf("calls = %v", f.calls)
	}
	if !strings.Contains(f.calls[0].spec, "udp --dport 53") || f.calls[1].chain != "POSTROUTING" {
		t.Fatalf("unexpected delete order: %v", f.calls)
	}
	if len(r.Applied()) != 0 {
		t.Fatalf("rules still tracked after Remove")
	}
}

func TestRemoveJoinsErrors(t *testing.T) {
	f := &fakeRules{}
	r := NewWithRules(f, true, quiet())
	_ = r.Apply("wlan0", "10.0.0.1:3000")
	f.deleteErr = errors.New("no chain/target/match by that name")

	err := r.Remove()
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := strings.Count(err.Error(), "delete"); got != 3 {
		t.Fatalf("joined errors = %d, want 3: %v", got, err)
	}
}
