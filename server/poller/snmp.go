package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/hlebuschek/printer-inventory-django-sub001/common/snmp/oids"
)

// SystemInfo is what the preflight GET returns: the MIB-II system group plus
// the Printer MIB serial number and lifetime page count.
type SystemInfo struct {
	Descr     string
	ObjectID  string
	Name      string
	Serial    string
	LifeCount string
}

// Prober checks that a device answers before the agent is started.
type Prober interface {
	Probe(ctx context.Context, t Target) (SystemInfo, error)
}

// SNMPClient is the subset of gosnmp used by SNMPProbe.
type SNMPClient interface {
	Connect() error
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Close() error
}

type gosnmpClient struct {
	conn *gosnmp.GoSNMP
}

func (c *gosnmpClient) Connect() error { return c.conn.Connect() }

func (c *gosnmpClient) Get(oids []string) (*gosnmp.SnmpPacket, error) { return c.conn.Get(oids) }

func (c *gosnmpClient) Close() error {
	if c.conn.Conn == nil {
		return nil
	}
	return c.conn.Conn.Close()
}

// SNMPProbe reads the system group and printer identity with an SNMP v2c GET.
type SNMPProbe struct {
	Port    uint16
	Timeout time.Duration
	Retries int

	// NewClient builds the client; tests replace it.
	NewClient func(ctx context.Context, t Target, p *SNMPProbe) SNMPClient
}

// NewSNMPProbe returns a probe with a short timeout and one retry.
func NewSNMPProbe(timeout time.Duration) *SNMPProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &SNMPProbe{Port: 161, Timeout: timeout, Retries: 1}
}

func defaultSNMPClient(ctx context.Context, t Target, p *SNMPProbe) SNMPClient {
	community := t.Community
	if community == "" {
		community = "public"
	}
	return &gosnmpClient{conn: &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    t.IP,
		Port:      p.Port,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   p.Timeout,
		Retries:   p.Retries,
	}}
}

// Probe performs the GET and returns whatever system values were present.
func (p *SNMPProbe) Probe(ctx context.Context, t Target) (SystemInfo, error) {
	newClient := p.NewClient
	if newClient == nil {
		newClient = defaultSNMPClient
	}
	client := newClient(ctx, t, p)
	if err := client.Connect(); err != nil {
		return SystemInfo{}, fmt.Errorf("snmp connect %s: %w", t.IP, err)
	}
	defer client.Close()

	pkt, err := client.Get(oids.Preflight)
	if err != nil {
		return SystemInfo{}, fmt.Errorf("snmp get %s: %w", t.IP, err)
	}
	info := systemInfoFromPDUs(pkt.Variables)
	if info == (SystemInfo{}) {
		return info, fmt.Errorf("snmp get %s: no system values returned", t.IP)
	}
	return info, nil
}

func systemInfoFromPDUs(vars []gosnmp.SnmpPDU) SystemInfo {
	var info SystemInfo
	for _, v := range vars {
		val := pduString(v)
		switch oids.Normalize(v.Name) {
		case oids.SysDescr:
			info.Descr = val
		case oids.SysObjectID:
			info.ObjectID = val
		case oids.SysName:
			info.Name = val
		case oids.PrtGeneralSerialNumber:
			info.Serial = val
		case oids.PrtMarkerLifeCount:
			info.LifeCount = val
		}
	}
	return info
}

func pduString(v gosnmp.SnmpPDU) string {
	switch v.Type {
	case gosnmp.OctetString:
		if b, ok := v.Value.([]byte); ok {
			return strings.TrimSpace(string(b))
		}
	case gosnmp.ObjectIdentifier:
		if s, ok := v.Value.(string); ok {
			return s
		}
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return ""
	}
	if v.Value == nil {
		return ""
	}
	return fmt.Sprint(v.Value)
}
