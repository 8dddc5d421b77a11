// Package sim provides the simulation-kernel abstraction layer and the
// experiment driver for microscopic traffic simulations.
//
// # Reading Guide
//
// Start with these three files to understand the kernel abstraction:
//   - kernel.go: the SimulationKernel capability set and the closed backend variant set
//   - vehicle.go: the per-step vehicle snapshot cache and flow-rate log
//   - experiment.go: the reset/step loop, metrics accumulation, and emission lifecycle
//
// # Architecture
//
// The sim package defines the uniform contract; the backend-specific pieces
// live in sub-packages:
//   - sim/backend/: external process handle and socket wire codec
//   - sim/native/: the in-process native-API simulation engine
//   - sim/network/: the road network description collaborator
//   - sim/emission/: post-run emission log conversion
//
// Two kernel adapters implement SimulationKernel: SocketKernel speaks the
// request/response socket protocol against an external simulator process,
// NativeKernel calls directly into the loaded native engine. They are
// indistinguishable to the Environment and the experiment driver; that
// indistinguishability is the essential abstraction this package provides.
//
// Control flow: Experiment.Run → Environment.Reset → loop{ Environment.Step
// → SimulationKernel.Advance → backend I/O → VehicleKernel refresh } →
// aggregate metrics → Environment.Terminate → emission conversion.
package sim
