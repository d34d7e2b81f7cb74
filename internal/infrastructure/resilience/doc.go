/*
Package resilience guards calls into the CLI backend.

# Circuit breaker

Breaker fails unary backend calls fast once the daemon stops answering,
instead of letting every catalog query wait for a dead connection.

	breaker := resilience.New("cli", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clierr.IsEmpty(err)
		},
	})

	records, err := resilience.Call(breaker, func() ([]types.RemoteRecord, error) {
		return client.search(ctx, req)
	})

States:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open

# Retry

Retry runs a function on a fixed schedule (attempt count and delay), used
for the provisioning manifest pass:

	attempts, err := resilience.Retry(ctx, resilience.Policy{
		Attempts: 5,
		Delay:    5 * time.Second,
	}, func(ctx context.Context, attempt int) error {
		return pass(ctx)
	})
*/
package resilience
