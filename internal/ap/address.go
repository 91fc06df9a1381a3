package ap

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dreaming-Codes/wifi-manager/internal/nm"
	"github.com/Dreaming-Codes/wifi-manager/internal/stage"
)

// WaitForAddress resolves the first IPv4 address assigned to dev.
//
// It subscribes to address changes on the device's IPv4 config before
// reading the current value, so an address assigned in between is not
// lost. Updates without an address are ignored. A timeout <= 0 waits until
// ctx ends or the stream closes.
func WaitForAddress(ctx context.Context, mgr nm.Manager, dev nm.Device, timeout time.Duration, log logrus.FieldLogger) (netip.Addr, error) {
	log = logger(log)

	path, err := dev.IP4Config(ctx)
	if err != nil {
		return netip.Addr{}, stage.Wrap(stage.Address, fmt.Errorf("read ip4 config: %w", err))
	}
	cfg, err := mgr.IP4Config(path)
	if err != nil {
		return netip.Addr{}, stage.Wrap(stage.Address, err)
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := cfg.WatchAddresses(wctx)
	if err != nil {
		return netip.Addr{}, stage.Wrap(stage.Address, err)
	}

	if cur, err := cfg.Addresses(ctx); err != nil {
		log.WithField("config", path).Debugf("[ADDR] initial read failed: %v", err)
	} else if ip, ok := FirstAddress(cur); ok {
		return ip, nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return netip.Addr{}, stage.Wrap(stage.Address, ctx.Err())
		case <-expired:
			return netip.Addr{}, stage.Wrap(stage.Address, fmt.Errorf("%w after %s", ErrAddressTimeout, timeout))
		case addrs, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return netip.Addr{}, stage.Wrap(stage.Address, err)
				}
				return netip.Addr{}, stage.Wrap(stage.Address, ErrAddressStreamClosed)
			}
			if ip, ok := FirstAddress(addrs); ok {
				return ip, nil
			}
			log.WithField("config", path).Debug("[ADDR] update without address, still waiting")
		}
	}
}

// FirstAddress decodes the address of the first triple. NetworkManager
// sends it in network byte order, so its in-memory layout on this host
// holds the octets in order.
func FirstAddress(addrs [][]uint32) (netip.Addr, bool) {
	if len(addrs) == 0 || len(addrs[0]) == 0 || addrs[0][0] == 0 {
		return netip.Addr{}, false
	}
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], addrs[0][0])
	return netip.AddrFrom4(b), true
}
