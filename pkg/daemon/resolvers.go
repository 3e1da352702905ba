package daemon

import (
	"context"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/overlay"
	"github.com/seekd/seekd/pkg/shares"
	"github.com/seekd/seekd/pkg/transfers"
)

// resolvers builds the inbound hook surface installed on the overlay
// client. Peer requests are answered out of the shared-file index and the
// transfer engine; notifications feed the search manager and peer table.
func (d *Daemon) resolvers() overlay.Resolvers {
	return overlay.Resolvers{
		BrowseShares: func(ctx context.Context, username string) ([]overlay.Directory, error) {
			dirs := d.index.Browse(ctx)
			out := make([]overlay.Directory, 0, len(dirs))
			for _, dir := range dirs {
				if dir.Hidden {
					continue
				}
				out = append(out, toOverlayDirectory(dir))
			}
			return out, nil
		},

		DirectoryContents: func(ctx context.Context, username, directory string) (overlay.Directory, error) {
			dir, err := d.index.List(ctx, directory)
			if err != nil {
				return overlay.Directory{}, err
			}
			return toOverlayDirectory(dir), nil
		},

		ResolveUserInfo: func(ctx context.Context, username string) (overlay.UserInfo, error) {
			return d.userInfo(), nil
		},

		EnqueueDownload: func(ctx context.Context, username, filename string) error {
			return d.engine.EnqueueUpload(ctx, username, filename)
		},

		SearchResponse: func(ctx context.Context, req overlay.SearchRequest) ([]overlay.File, error) {
			return d.searches.AnswerInbound(ctx, req)
		},

		OnSearchResponse: d.searches.OnSearchResponse,

		OnUserStatus: func(status overlay.UserStatus) {
			d.peers.ObserveStatus(status.Username, status.Online, status.Files, status.Directories)
		},

		OnPrivateMessage: func(msg overlay.PrivateMessage) {
			logger.Debug("private message", logger.Username(msg.Username))
		},

		OnRoomMessage: func(msg overlay.RoomMessage) {
			logger.Debug("room message", "room", msg.Room, logger.Username(msg.Username))
		},
	}
}

// userInfo summarizes the upload side of the transfer engine for peers
// asking about this daemon.
func (d *Daemon) userInfo() overlay.UserInfo {
	cfg := d.config()
	queued, active := 0, 0
	for _, t := range d.engine.List(transfers.Upload) {
		switch t.State {
		case transfers.StateQueuedLocally, transfers.StateQueuedRemotely:
			queued++
		case transfers.StateInitializing, transfers.StateInProgress:
			active++
		}
	}
	return overlay.UserInfo{
		UploadSlots: cfg.Transfers.Uploads.Slots,
		QueueLength: queued,
		HasFreeSlot: active < cfg.Transfers.Uploads.Slots,
	}
}

func toOverlayDirectory(dir shares.Directory) overlay.Directory {
	out := overlay.Directory{
		Name:  dir.Path,
		Files: make([]overlay.File, 0, len(dir.Files)),
	}
	for _, f := range dir.Files {
		out.Files = append(out.Files, toOverlayFile(f))
	}
	return out
}

func toOverlayFile(f shares.File) overlay.File {
	out := overlay.File{
		Name:      f.Path,
		Size:      f.Size,
		Extension: f.Extension,
	}
	if f.Audio != nil {
		out.BitRate = f.Audio.BitRate
		out.SampleRate = f.Audio.SampleRate
		out.DurationSecs = f.Audio.DurationSecs
		out.VariableBitRate = f.Audio.VariableBitRate
	}
	return out
}
