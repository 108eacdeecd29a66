// Package natsclient manages the NATS connection used for durable document
// storage and configuration hot reload.
//
// The client owns one *nats.Conn and its JetStream context. It reports its
// connection status, exposes get-or-create helpers for key-value buckets and
// drains the connection on Close.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithName("docmesh"),
//		natsclient.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := client.Connect(ctx); err != nil { ... }
//	defer client.Close(context.Background())
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//		Bucket:  "docmesh-documents",
//		History: 1,
//	})
//
// Tests obtain a real server through NewTestClient, which starts a NATS
// container with JetStream enabled.
package natsclient
