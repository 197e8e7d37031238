// Package api implements the HTTP REST API and WebSocket server for the
// automation service.
//
// This package provides:
//   - REST endpoints for device and sensor inventory
//   - Link management: link, unlink, thresholds, pause and resume
//   - Sensor reading ingestion that runs threshold evaluation
//   - Transition history queries
//   - Audit trail of configuration changes
//   - WebSocket hub for real-time reading, transition and link events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Error Mapping
//
// Automation errors map to status codes by sentinel:
//
//	automation.ErrValidation   -> 400
//	automation.ErrNotFound     -> 404
//	automation.ErrNotLinked    -> 409
//	automation.ErrConsistency  -> 409
//	automation.ErrPersistence  -> 503
//
// # Graceful Degradation
//
// The server operates without MQTT or InfluxDB. Readings posted over HTTP
// are evaluated the same way as readings arriving on the bus.
package api
