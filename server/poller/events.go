package poller

import (
	"github.com/hlebuschek/printer-inventory-django-sub001/common/ws"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/counters"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/storage"
)

// Publisher receives progress events. *ws.Hub satisfies it.
type Publisher interface {
	Publish(msg ws.Message) bool
}

func (s *Service) publish(msg ws.Message) {
	if s.pub != nil {
		s.pub.Publish(msg)
	}
}

func startEvent(p *storage.Printer, runID string) ws.Message {
	return ws.NewMessage(ws.MessageTypeInventoryStart, map[string]interface{}{
		"printer_id": p.ID,
		"ip_address": p.IPAddress,
		"run_id":     runID,
	})
}

func updateEvent(p *storage.Printer, res *Result) ws.Message {
	out := res.Outcome
	data := map[string]interface{}{
		"printer_id":         p.ID,
		"ip_address":         p.IPAddress,
		"run_id":             res.RunID,
		"status":             string(out.Status()),
		"kind":               string(out.Kind),
		"match_rule":         string(out.Rule),
		"reflashed":          out.Reflashed,
		"counter_regression": len(res.Regressed) > 0,
	}
	if res.Task != nil {
		data["task_id"] = res.Task.ID
		data["timestamp"] = res.Task.Timestamp
	}
	if !out.OK() {
		data["message"] = out.Reason
		return ws.NewMessage(ws.MessageTypeInventoryUpdate, data)
	}

	data["bw_a3"] = intOrNil(out.Counters.BWA3)
	data["bw_a4"] = intOrNil(out.Counters.BWA4)
	data["color_a3"] = intOrNil(out.Counters.ColorA3)
	data["color_a4"] = intOrNil(out.Counters.ColorA4)
	data["total"] = out.Counters.TotalPages
	data["branch"] = string(out.Branch)
	if len(res.Regressed) > 0 {
		data["regressed_fields"] = res.Regressed
	}
	for k, v := range suppliesMap(out.Supplies) {
		data[k] = v
	}
	return ws.NewMessage(ws.MessageTypeInventoryUpdate, data)
}

func errorEvent(printerID int64, runID string, err error) ws.Message {
	return ws.NewMessage(ws.MessageTypeError, map[string]interface{}{
		"printer_id": printerID,
		"run_id":     runID,
		"message":    err.Error(),
	})
}

func intOrNil(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func suppliesMap(s counters.Supplies) map[string]string {
	return map[string]string{
		"drum_black":    s.DrumBlack,
		"drum_cyan":     s.DrumCyan,
		"drum_magenta":  s.DrumMagenta,
		"drum_yellow":   s.DrumYellow,
		"toner_black":   s.TonerBlack,
		"toner_cyan":    s.TonerCyan,
		"toner_magenta": s.TonerMagenta,
		"toner_yellow":  s.TonerYellow,
		"fuser_kit":     s.FuserKit,
		"transfer_kit":  s.TransferKit,
		"waste_toner":   s.WasteToner,
	}
}

// outcomeSummary is a one-line description used in logs.
func outcomeSummary(out inventory.Outcome) string {
	if out.OK() {
		return string(out.Rule)
	}
	return out.Reason
}
