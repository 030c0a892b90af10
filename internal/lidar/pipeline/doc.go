// Package pipeline turns a sensor's packet stream into rotation frames.
//
// A Stream owns one sensor's decoder, converter and frame assembler and
// must be fed from a single goroutine. Packet sources (pcap replay, live
// UDP) live in l1packets/network; Run connects one to a Stream.
package pipeline
