// Package bootstrap initializes logging and configuration and runs the
// triage pipeline.
//
// Usage:
//
//	_, sugar, err := bootstrap.InitLogger("info")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := bootstrap.InitConfig("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	app := bootstrap.NewApp(cfg, sugar)
//	summary, err := app.Run("Security.evtx")
//
// A run moves Idle → Ingesting → Deserializing → Routing → Reporting → Done.
// A decode failure moves it to Failed before anything is printed.
package bootstrap
