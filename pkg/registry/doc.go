/*
Package registry holds the service definition catalog for Conductor.

Definitions are pure data: name, dependency edges, health-check spec,
restart policy, priority, and category. The registry is read-mostly;
writes happen at registration time and each write revalidates the whole
catalog with the dependency graph engine. A batch that would introduce a
cycle is rejected synchronously and atomically.

Catalogs can be persisted to the BoltDB store and loaded from a YAML file
at boot:

	services:
	  - name: mqtt-broker
	  - name: stt
	    depends_on: [mqtt-broker]
	  - name: dialogue
	    depends_on: [stt]
	    optional_deps: [translator]
*/
package registry
