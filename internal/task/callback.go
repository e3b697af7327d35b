package task

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"reconciliation-task-service/internal/models"
	"reconciliation-task-service/pkg/errors"
	"reconciliation-task-service/pkg/logger"
)

// callbackClient POSTs terminal-state notifications to a task's callback
// URL. Delivery is best effort: each attempt waits its scheduled delay, any
// 2xx response stops the schedule, and exhausting it only logs.
type callbackClient struct {
	delays []time.Duration
	client *http.Client
	log    logger.Logger
}

func newCallbackClient(delays []time.Duration, log logger.Logger) *callbackClient {
	return &callbackClient{
		delays: delays,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.WithComponent("callback"),
	}
}

func (c *callbackClient) Deliver(url string, envelope models.CallbackEnvelope) {
	body, err := json.Marshal(envelope)
	if err != nil {
		c.log.WithError(err).WithField("task_id", envelope.TaskID).Error("Cannot marshal callback payload")
		return
	}

	for attempt, delay := range c.delays {
		time.Sleep(delay)

		resp, err := c.client.Post(url, "application/json", bytes.NewReader(body))
		if err == nil {
			ok := resp.StatusCode >= 200 && resp.StatusCode < 300
			resp.Body.Close()
			if ok {
				c.log.WithFields(logger.Fields{
					"task_id": envelope.TaskID,
					"url":     url,
					"attempt": attempt + 1,
				}).Debug("Callback delivered")
				return
			}
			err = errors.NetworkError(errors.CodeCallbackFailed, url, nil).
				WithContext("status_code", resp.StatusCode)
		}
		c.log.WithError(err).WithFields(logger.Fields{
			"task_id": envelope.TaskID,
			"attempt": attempt + 1,
		}).Warn("Callback attempt failed")
	}

	c.log.WithField("task_id", envelope.TaskID).
		Error("Callback delivery gave up after all attempts")
}
