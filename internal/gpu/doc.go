// Package gpu is the narrow device interface the renderer core is written
// against. The vulkan package implements it on top of vkngwrapper; gputest
// implements it in memory for tests.
//
// Every handle interface owns exactly one GPU object. Destroy (or Free for
// DeviceMemory) releases it and must be called exactly once, after the GPU has
// retired all work that references it.
package gpu
