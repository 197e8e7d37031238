// Package automation links devices to sensors and drives them from sensor
// readings.
//
// A device is linked to at most one sensor. The link carries an on
// threshold, an optional separate off threshold, and an enabled flag.
// When the sensor reports a reading the engine switches each enabled,
// linked device:
//
//	off and reading <  on threshold   → turn on
//	on  and reading >= off threshold  → turn off (on threshold if no off threshold)
//
// Only state changes are published, so a steady reading never repeats a
// command.
//
// # Components
//
//   - Engine (engine.go): evaluates readings, publishes commands and state
//     over MQTT, broadcasts WebSocket events, and writes telemetry and
//     transition history.
//   - Manager (manager.go): Link, Unlink, SetThresholds, SetEnabled and
//     the cascading RemoveDevice/RemoveSensor. Each mutation updates the
//     device registry, the sensor registry and the LinkStore together and
//     rolls the registries back if the LinkStore write fails.
//   - RestoreLinks (restore.go): rebuilds link state from the LinkStore at
//     startup, creating placeholder devices for rows whose device is gone.
//   - LinkStore (store.go): the durable link table. Implementations are
//     SQLite (store_sqlite.go), an Excel workbook (store_excel.go) and a
//     Redis hash (store_redis.go).
//
// # Locking
//
// Engine and Manager share one mutex. The Manager holds it across the
// LinkStore write so that a rollback happens before any reading can be
// evaluated. Link evaluates the new sensor's current reading while still
// holding the lock through an internal unlocked path.
//
// # Usage
//
//	engine := automation.NewEngine(device.Default(), sensor.Default(), automation.Sinks{
//	    MQTT: mqttClient,
//	    Hub:  hub,
//	}, log)
//	manager := automation.NewManager(engine, automation.NewSQLiteLinkStore(db.DB), 1, log)
//
//	if _, err := manager.RestoreLinks(ctx); err != nil {
//	    return err
//	}
//	if _, err := manager.LinkWithThresholds(ctx, "L1", "S1", automation.Mirrored(800)); err != nil {
//	    return err
//	}
//	engine.Evaluate(ctx, "S1", 200)
package automation
