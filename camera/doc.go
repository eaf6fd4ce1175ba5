// Package camera implements an XPAD detector on top of the xpad protocol client.
//
// A Camera translates detector settings (image type, trigger mode, exposure
// and latency times, frame count) into server commands, and runs long
// operations on a single acquisition worker goroutine:
//
//	cfg, _ := camera.NewConfig("xpad-server", 3456, camera.ModelS70)
//	cam, _ := camera.New(cfg)
//	defer cam.Close()
//
//	_ = cam.Init(ctx)
//	_ = cam.SetNbFrames(5)
//	_ = cam.SetExpTime(0.1)
//	_ = cam.PrepareAcq(ctx)
//	_ = cam.StartAcq(ctx)
//	err := cam.Wait(ctx)
//
// Jobs are the tagged union CaptureJob, CalibrationJob, FileTransferJob,
// DefaultConfigGJob, RegisterAdjustJob and FlatConfigLJob. Exactly one job
// runs at a time; starting a job waits for the previous one to end and
// returns once the worker has accepted the new one.
//
// The wire vocabulary of each server generation lives in a CommandTable, so
// the same engine drives both the legacy and the current servers.
package camera
