// Package mocks provides gomock implementations of the ports in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockJobRepository(ctrl)
//	repo.EXPECT().MarkDispatched(gomock.Any(), id).Return(true, nil)
package mocks

// JobRepository: Create, GetByID, MarkDispatched, ClearDispatched, Start, Checkpoint, Complete,
// Fail, Cancel, List, Stats.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/mmk-dataport/internal/core JobRepository

// ReaperRepository: FailExpiredLeases, RedispatchStale.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/target/mmk-dataport/internal/core ReaperRepository

// DispatchFeed: ListDispatched, NotifyDispatched, WaitForDispatch.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=dispatch_feed_mock.go github.com/target/mmk-dataport/internal/core DispatchFeed

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=queue_mock.go github.com/target/mmk-dataport/internal/core Queue

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=progress_store_mock.go github.com/target/mmk-dataport/internal/core ProgressStore

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=artifact_store_mock.go github.com/target/mmk-dataport/internal/core ArtifactStore
