package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"github.com/gofiber/fiber/v2"
)

const heartbeatInterval = 25 * time.Second

// -------------------------------------------------
// GET /api/events?branch=Kochi
// server-sent events, one per committed ledger change
// -------------------------------------------------
func StreamHandler(bus *Bus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		branchKey := models.BranchKey(c.Query("branch"))

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")

		ch, stop := bus.Watch(32)

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer stop()

			ticker := time.NewTicker(heartbeatInterval)
			defer ticker.Stop()

			for {
				select {
				case e, ok := <-ch:
					if !ok {
						return
					}
					if branchKey != "" && models.BranchKey(e.Transaction.Branch) != branchKey {
						continue
					}
					data, err := json.Marshal(e)
					if err != nil {
						continue
					}
					fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Scenario, data)
				case <-ticker.C:
					fmt.Fprint(w, ": ping\n\n")
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		})
		return nil
	}
}
