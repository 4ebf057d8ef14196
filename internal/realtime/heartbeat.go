package realtime

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Heartbeat drives the §4.7 "heartbeat cycle every 30s" sweep using
// robfig/cron the same way the teacher schedules its background poll in
// server/poller.go, substituting a cron spec for a raw ticker so the
// interval is configuration, not a magic constant buried in a loop.
type Heartbeat struct {
	hub *Hub
	cr  *cron.Cron
	log *logrus.Entry
}

// NewHeartbeat wires a Heartbeat to hub. Call Start to begin the sweep.
func NewHeartbeat(hub *Hub, log *logrus.Entry) *Heartbeat {
	return &Heartbeat{
		hub: hub,
		cr:  cron.New(cron.WithSeconds()),
		log: log,
	}
}

// Start schedules the sweep every 30 seconds.
func (hb *Heartbeat) Start() error {
	_, err := hb.cr.AddFunc("*/30 * * * * *", hb.sweep)
	if err != nil {
		return err
	}
	if _, err := hb.cr.AddFunc("0 0 * * * *", func() { hb.hub.gcIdleSessionsAndPresence(time.Now()) }); err != nil {
		return err
	}
	hb.cr.Start()
	return nil
}

func (hb *Heartbeat) Stop() {
	hb.cr.Stop()
}

// sweep pings every live connection; a connection that fails to answer two
// consecutive pings is dropped, per §4.7.
func (hb *Heartbeat) sweep() {
	for _, c := range hb.hub.allConnections() {
		if !c.ping() {
			hb.log.WithField("connectionId", c.id).Info("connection missed heartbeat, closing")
			c.ws.Close()
		}
	}
}
