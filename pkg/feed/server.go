package feed

import (
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/receipts"
)

// Server errors.
var (
	ErrServerClosed = errors.New("feed server closed")
)

// ReplayLimit bounds how many historical receipts one subscription replays.
const ReplayLimit = 10_000

// Server serves the receipt feed over gRPC.
type Server struct {
	feed *Feed
	log  *receipts.Log
	grpc *grpc.Server
}

// ServiceName is the gRPC service the server registers; the Subscribe
// stream lives at /tokensale.Feed/Subscribe.
const ServiceName = "tokensale.Feed"

type feedService interface{}

// NewServer creates a feed server over the given fan-out hub and log.
func NewServer(f *Feed, l *receipts.Log) *Server {
	s := &Server{
		feed: f,
		log:  l,
		grpc: grpc.NewServer(
			grpc.KeepaliveParams(keepalive.ServerParameters{}),
		),
	}

	// Service description is hand-defined to match the hand-defined wire
	// messages; no generated code.
	s.grpc.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*feedService)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Subscribe",
				Handler:       s.handleSubscribe,
				ServerStreams: true,
			},
		},
	}, s)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// handleSubscribe serves one Subscribe stream: optional replay from the
// receipt log, then live receipts until the client goes away.
func (s *Server) handleSubscribe(srv interface{}, stream grpc.ServerStream) error {
	req := &subscribeRequest{}
	if err := stream.RecvMsg(req); err != nil {
		return err
	}

	var mintFilter *types.Pubkey
	if req.Mint != "" {
		mint, err := types.PubkeyFromBase58(req.Mint)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "bad mint: %v", err)
		}
		mintFilter = &mint
	}

	// Subscribe before replay so nothing committed during the replay is
	// missed; duplicates at the boundary are filtered by sequence.
	ch, cancel := s.feed.Subscribe(mintFilter)
	defer cancel()

	var lastSent uint64
	if req.FromSeq > 0 {
		last, err := s.replay(stream, req.FromSeq, mintFilter)
		if err != nil {
			return err
		}
		lastSent = last
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-ch:
			if !ok {
				return ErrServerClosed
			}
			if r.Seq <= lastSent {
				continue
			}
			if err := stream.SendMsg(updateFromReceipt(r)); err != nil {
				return err
			}
			lastSent = r.Seq
		}
	}
}

// replay streams historical receipts from fromSeq and returns the last
// sequence sent.
func (s *Server) replay(stream grpc.ServerStream, fromSeq uint64, mint *types.Pubkey) (uint64, error) {
	var last uint64
	end := s.log.LastSeq()
	for seq := fromSeq; seq <= end && seq < fromSeq+ReplayLimit; seq++ {
		r, err := s.log.Get(seq)
		if errors.Is(err, receipts.ErrNotFound) {
			continue
		}
		if err != nil {
			return last, status.Errorf(codes.Internal, "read receipt %d: %v", seq, err)
		}
		if mint != nil && *mint != r.Mint {
			continue
		}
		if err := stream.SendMsg(updateFromReceipt(r)); err != nil {
			return last, err
		}
		last = r.Seq
	}
	return last, nil
}
