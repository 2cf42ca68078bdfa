package feed

import "fmt"

// Wire messages for the receipt feed service. These are hand-defined with
// protobuf field tags rather than generated from proto files; the gRPC
// codec serializes them by tag, so they stay wire-compatible with any
// client generated from an equivalent schema.

// subscribeRequest opens a receipt subscription.
type subscribeRequest struct {
	// Mint filters the stream to one sale; empty means all sales.
	Mint string `protobuf:"bytes,1,opt,name=mint"`

	// FromSeq replays the log from this sequence before live receipts;
	// zero means live only.
	FromSeq uint64 `protobuf:"varint,2,opt,name=from_seq"`
}

func (x *subscribeRequest) Reset()         { *x = subscribeRequest{} }
func (x *subscribeRequest) String() string { return fmt.Sprintf("%+v", *x) }
func (x *subscribeRequest) ProtoMessage()  {}

// receiptUpdate is one settled sale operation on the wire.
type receiptUpdate struct {
	Seq       uint64 `protobuf:"varint,1,opt,name=seq"`
	Kind      string `protobuf:"bytes,2,opt,name=kind"`
	Mint      string `protobuf:"bytes,3,opt,name=mint"`
	Actor     string `protobuf:"bytes,4,opt,name=actor"`
	Tokens    uint64 `protobuf:"varint,5,opt,name=tokens"`
	BaseUnits uint64 `protobuf:"varint,6,opt,name=base_units"`
	Lamports  uint64 `protobuf:"varint,7,opt,name=lamports"`
	UnixNanos int64  `protobuf:"varint,8,opt,name=unix_nanos"`
	PrevHash  []byte `protobuf:"bytes,9,opt,name=prev_hash"`
	Hash      []byte `protobuf:"bytes,10,opt,name=hash"`
}

func (x *receiptUpdate) Reset()         { *x = receiptUpdate{} }
func (x *receiptUpdate) String() string { return fmt.Sprintf("%+v", *x) }
func (x *receiptUpdate) ProtoMessage()  {}
