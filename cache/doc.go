// Package cache provides a two-tier cache: a Redis-backed [Remote] tier and
// an in-process [Local] tier, orchestrated by [Service].
//
// # Cache Interface
//
// The [Cache] interface defines three operations: [Cache.Get], [Cache.Set]
// and [Cache.Delete]. Both [Local] and [Remote] satisfy it. Values are [any]
// because Go does not allow generic methods on interfaces; the package-level
// generic functions [Get], [GetAs] and [Exec] provide typed access.
//
// # Tiers
//
//   - [Local] is a map guarded by a mutex. Values are stored as-is. An entry
//     is visible while now < expiry. Expired entries are removed lazily on
//     [Local.Get], and a sweep runs on [Local.Set] whenever the map holds
//     more than [DefaultSweepThreshold] entries. It never fails.
//
//   - [Remote] talks to Redis through a [Transport], by default one built on
//     [github.com/redis/go-redis/v9]. Values are encoded with a [Codec]
//     ([JSON] by default, [Msgpack] optional) and stored as plain strings
//     with a native Redis TTL. Operations fail fast with [ErrNotConnected]
//     unless the connection state is [Connected].
//
//   - [Service] routes every call to the primary tier ([Remote] when a
//     connection string is configured, otherwise the [Local] fallback
//     itself). On any primary failure it reports the error and repeats the
//     call on the fallback. Service methods never return errors.
//
// # Reconnects
//
// [Remote.InitializeConnection] moves the state to [Connecting] and asks the
// transport to connect. The transport retries the handshake with
// exponential backoff (see [resilience.Retry]), emitting a reconnecting
// event before each wait. If the handshake still fails, or an established
// connection later reports an error, the state becomes [Disconnected] and a
// single reconnect is scheduled after the reconnect delay. Further errors
// while a reconnect is pending do not schedule another.
//
//	svc, err := cache.NewService(cfg, cache.WithReporter(reporter))
//	if err != nil {
//	    return err
//	}
//	defer svc.Close(ctx)
//	svc.Set(ctx, "project_data", data, 0)
//	found, data := cache.GetAs[ProjectData](ctx, svc, "project_data")
//
// # Errors
//
// [Remote] marks failures with [ErrTransport], [ErrSerialization] or
// [ErrNotConnected] using [github.com/cockroachdb/errors]; match them with
// errors.Is. An empty connection string is an [ErrConfiguration].
//
// [Exec] propagates cache read errors without calling the invoker and
// ignores cache write errors after a successful invoke.
package cache
