package arp

// ====== Retry scheduler ======

// armTick schedules the next retry tick unless one is already armed.
func (m *Module) armTick() {
	if m.tickArmed || m.closed {
		return
	}
	m.tickArmed = true
	gen := m.gen
	m.sched.After(m.cfg.RetryInterval, func() { m.onTick(gen) })
}

// onTick ages the table out and walks the registry: requests that have
// waited a full interval are resent while retries remain and are given up
// otherwise. The tick re-arms itself only while requests are outstanding.
func (m *Module) onTick(gen uint64) {
	if gen != m.gen || m.closed {
		return
	}
	m.tickArmed = false

	now := m.sched.Now()
	if n := m.table.Sweep(now); n > 0 {
		m.log.Debug().Int("count", n).Msg("arp entries aged out")
	}

	for _, p := range m.pending.Requests() {
		if now-p.SentTime < m.cfg.RetryInterval {
			continue
		}
		intf := m.ifaces[p.Interface]

		if p.RetriesRemaining > 0 {
			m.sendRequest(intf, p.Address, p.Purpose == DuplicateAddressCheck)
			p.RetriesRemaining--
			p.SentTime = now
			continue
		}

		m.pending.Remove(p.Interface, p.Address)
		m.log.Debug().Int("if", p.Interface).Stringer("addr", p.Address).
			Int("buffered", len(p.buffer)).Msg("arp retries exhausted")
		m.dropAll(p, DropExhausted)
		if p.Purpose == DuplicateAddressCheck && m.checker != nil {
			m.log.Info().Int("if", p.Interface).Stringer("addr", p.Address).Msg("address check: available")
			m.checker.AddressCheckResult(p.Interface, p.Address, false)
		}
	}

	if m.pending.Len() > 0 {
		m.armTick()
	}
}
