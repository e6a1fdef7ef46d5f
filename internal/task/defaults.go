package task

import "time"

// Worker names. Each worker owns one queue endpoint and one consumer
// loop per process.
const (
	WorkerItem         = "item"
	WorkerExternalEC   = "external-ec"
	WorkerScheduled    = "scheduled"
	WorkerNotification = "notification"
)

// Kind names accepted by the workers above.
const (
	KindCreateItem    = "create-item"
	KindUpdateItem    = "update-item"
	KindUpdateProduct = "update-product"
	KindStocking      = "stocking"

	KindUpdateStock = "update-stock"
	KindUpdatePrice = "update-price"
	KindPullOrders  = "pull-orders"

	KindSaleStatusSweep        = "sale-status-sweep"
	KindBundleStatusSweep      = "bundle-status-sweep"
	KindReservationStatusSweep = "reservation-status-sweep"

	KindSendPush  = "send-push"
	KindSendEmail = "send-email"
)

// externalECGroupTag serializes marketplace writes per store: a
// marketplace rejects out-of-order stock and price updates, so every
// external-ec chunk for one store shares one ordered lane.
const externalECGroupTag = "external-ec"

// DefaultCatalog returns the production kind catalog. The table is
// static configuration; an invalid entry is a programming error, so
// construction failures panic at startup rather than surfacing as a
// runtime error path.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(
		KindDef{
			Worker:    WorkerItem,
			Kind:      KindCreateItem,
			ChunkSize: 100,
			Cooldown:  CooldownTable{Default: 3 * time.Second, Night: time.Second},
		},
		KindDef{
			Worker:    WorkerItem,
			Kind:      KindUpdateItem,
			ChunkSize: 100,
			Cooldown:  CooldownTable{Default: 3 * time.Second, Night: time.Second},
		},
		KindDef{
			Worker:    WorkerItem,
			Kind:      KindUpdateProduct,
			ChunkSize: 50,
			Cooldown:  CooldownTable{Default: 3 * time.Second, Night: time.Second},
		},
		KindDef{
			Worker:    WorkerItem,
			Kind:      KindStocking,
			ChunkSize: 200,
			Cooldown:  CooldownTable{Default: 2 * time.Second, Night: time.Second},
		},
		KindDef{
			Worker:           WorkerExternalEC,
			Kind:             KindUpdateStock,
			ChunkSize:        20,
			OrderingGroupTag: externalECGroupTag,
			Cooldown:         CooldownTable{Default: 5 * time.Second, Night: 2 * time.Second},
		},
		KindDef{
			Worker:           WorkerExternalEC,
			Kind:             KindUpdatePrice,
			ChunkSize:        20,
			OrderingGroupTag: externalECGroupTag,
			Cooldown:         CooldownTable{Default: 5 * time.Second, Night: 2 * time.Second},
		},
		KindDef{
			Worker:           WorkerExternalEC,
			Kind:             KindPullOrders,
			ChunkSize:        10,
			OrderingGroupTag: externalECGroupTag,
			FixedDelay:       30 * time.Second,
			Cooldown:         CooldownTable{Default: 5 * time.Second, Night: 2 * time.Second},
		},
		KindDef{
			Worker:    WorkerScheduled,
			Kind:      KindSaleStatusSweep,
			ChunkSize: 500,
			Cooldown:  CooldownTable{Default: time.Second, Night: time.Second},
		},
		KindDef{
			Worker:    WorkerScheduled,
			Kind:      KindBundleStatusSweep,
			ChunkSize: 500,
			Cooldown:  CooldownTable{Default: time.Second, Night: time.Second},
		},
		KindDef{
			Worker:    WorkerScheduled,
			Kind:      KindReservationStatusSweep,
			ChunkSize: 500,
			Cooldown:  CooldownTable{Default: time.Second, Night: time.Second},
		},
		KindDef{
			Worker:    WorkerNotification,
			Kind:      KindSendPush,
			ChunkSize: 100,
			Cooldown:  CooldownTable{Default: 2 * time.Second, Night: time.Second},
		},
		KindDef{
			Worker:     WorkerNotification,
			Kind:       KindSendEmail,
			ChunkSize:  50,
			FixedDelay: 10 * time.Second,
			Cooldown:   CooldownTable{Default: 2 * time.Second, Night: time.Second},
		},
	)
	if err != nil {
		panic(err)
	}
	return catalog
}
