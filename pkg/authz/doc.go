// Package authz assembles a complete authorization engine from configuration.
//
// A Manager owns the evaluator and everything behind it: the assignment store,
// audit destinations, metrics registry, tracer provider, the optional
// definition watcher and the expiry sweeper.
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	manager, err := authz.New(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer manager.Close()
//
//	http.Handle("/metrics", manager.MetricsHandler())
//	go manager.Run(ctx)
//
//	if manager.Evaluator().CanAccessResource(ctx, userID, "course", "update", &ac) {
//		// ...
//	}
package authz
