// Package testutil provides test utilities for stress testing and verification.
//
// This file defines the named sync points for the main components.
// These are plain string constants with zero runtime overhead.
//
// Sync points allow tests to inject deterministic behavior into concurrent code.
// In production builds (without -tags synctest), SP() calls are no-ops.
package testutil

// Sync point names, grouped by component ("Component::Function:Location").
// No code in this module currently passes them to SP.
const (
	// WAL writer
	SPWALWriteStart    = "Writer::Write:Start"
	SPWALWriteComplete = "Writer::Write:Complete"
	SPWALRollStart      = "Writer::Roll:Start"
	SPWALRollWaitReader = "Writer::Roll:WaitReader"
	SPWALRollComplete   = "Writer::Roll:Complete"
	SPWALSyncStart      = "Writer::Sync:Start"
	SPWALSyncComplete   = "Writer::Sync:Complete"
	SPWALBlockedOnSpace = "Writer::Write:BlockedOnSpace"

	// WAL reader
	SPWALReadStart    = "Reader::Next:Start"
	SPWALReadComplete = "Reader::Next:Complete"
	SPWALReadWaitData = "Reader::Next:WaitData"
	SPWALAckStart     = "Reader::Ack:Start"
	SPWALAckComplete  = "Reader::Ack:Complete"
	SPWALFileDeleted  = "Reader::Ack:FileDeleted"

	// Ledger
	SPLedgerFlushStart    = "Ledger::Flush:Start"
	SPLedgerFlushComplete = "Ledger::Flush:Complete"
	SPLedgerRecoverStart  = "Ledger::Recover:Start"
	SPLedgerRecoverDone   = "Ledger::Recover:Complete"

	// Buffer topology
	SPStageOfferStart    = "Stage::Offer:Start"
	SPStageOfferBlocked  = "Stage::Offer:Blocked"
	SPStageOfferOverflow = "Stage::Offer:Overflow"
	SPStageOfferComplete = "Stage::Offer:Complete"
	SPStageUsageEmit     = "Stage::Usage:Emit"

	// File tailer
	SPTailReconcileStart    = "Tailer::Reconcile:Start"
	SPTailReconcileComplete = "Tailer::Reconcile:Complete"
	SPTailReadCycle         = "Watcher::Read:Cycle"
	SPTailRotationDetected  = "Watcher::Read:RotationDetected"
	SPTailTruncateDetected  = "Watcher::Read:TruncateDetected"
	SPTailCheckpointSave    = "Checkpointer::Save:Start"
	SPTailCheckpointDone    = "Checkpointer::Save:Complete"

	// TCP acceptor
	SPTCPAcceptStart    = "Listener::Accept:Start"
	SPTCPAcceptComplete = "Listener::Accept:Complete"
	SPTCPHandshakeStart = "Conn::Handshake:Start"
	SPTCPHandshakeDone  = "Conn::Handshake:Complete"
	SPTCPFrameRead      = "Conn::Frame:Read"
	SPTCPAckAwait       = "Conn::Ack:Await"
	SPTCPAckWritten     = "Conn::Ack:Written"
	SPTCPDrainStart     = "Listener::Drain:Start"
	SPTCPDrainComplete  = "Listener::Drain:Complete"
)
