// Package influxdb records door transitions in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library: connection
// management, batched non-blocking writes and health checks.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDoorTransition("CG0812345", "Left Door", "closed", "opening", time.Now())
//
// Writes are batched and flushed every flush_interval seconds or when
// batch_size points are buffered. Write failures arrive asynchronously
// through SetOnError.
package influxdb
